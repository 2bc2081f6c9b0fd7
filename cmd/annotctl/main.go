// Package main provides annotctl, an operator tool that runs the annotation
// pipeline offline: segment a document, render an annotated view, or inspect
// how raw annotation JSON classifies, all without a running server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/segmenter"
	"marginalia/internal/render"
	"marginalia/internal/render/markdown"
)

var CLI struct {
	Segment SegmentCmd `cmd:"" help:"Compute the segmentation plan for a document and its annotations"`
	Render  RenderCmd  `cmd:"" help:"Render an annotated HTML view of a document"`
	Inspect InspectCmd `cmd:"" help:"Decode annotation JSON and report how each entry classifies"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func loadDocument(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(raw), nil
}

func loadAnnotations(path string) ([]*models.Annotation, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations: %w", err)
	}
	anns, err := models.DecodeAnnotationList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	return anns, nil
}

// SegmentCmd prints the derived segments and everything the pass excluded.
type SegmentCmd struct {
	Document    string `arg:"" type:"existingfile" help:"Document text file"`
	Annotations string `name:"annotations" short:"a" type:"existingfile" optional:"" help:"Annotation JSON (array, or object with items/annotations)"`
	JSON        bool   `name:"json" help:"Emit the plan as JSON"`
}

type segmentView struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Text         string `json:"text"`
	AnnotationID string `json:"annotationId,omitempty"`
	Motivation   string `json:"motivation,omitempty"`
}

type planView struct {
	Segments    []segmentView       `json:"segments"`
	Dropped     []map[string]string `json:"dropped,omitempty"`
	Fingerprint string              `json:"fingerprint"`
}

func (c *SegmentCmd) Run() error {
	text, err := loadDocument(c.Document)
	if err != nil {
		return err
	}
	anns, err := loadAnnotations(c.Annotations)
	if err != nil {
		return err
	}

	plan := segmenter.Compute(text, anns)

	if c.JSON {
		view := planView{Fingerprint: plan.Fingerprint()}
		for _, s := range plan.Segments {
			sv := segmentView{Start: s.Start, End: s.End, Text: s.Text}
			if s.Annotated() {
				sv.AnnotationID = s.Annotation.ID.String()
				sv.Motivation = s.Annotation.Motivation.String()
			}
			view.Segments = append(view.Segments, sv)
		}
		for _, d := range plan.Dropped {
			view.Dropped = append(view.Dropped, map[string]string{
				"annotationId": d.Annotation.ID.String(),
				"reason":       string(d.Reason),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	for _, s := range plan.Segments {
		if s.Annotated() {
			fmt.Printf("[%4d,%4d) %-12s %s  %q\n", s.Start, s.End,
				s.Annotation.Motivation.String(), s.Annotation.ID.String(), s.Text)
			continue
		}
		fmt.Printf("[%4d,%4d) %-12s %s  %q\n", s.Start, s.End, "plain", "-", s.Text)
	}
	for _, d := range plan.Dropped {
		fmt.Fprintf(os.Stderr, "dropped %s: %s\n", d.Annotation.ID.String(), d.Reason)
	}
	fmt.Fprintf(os.Stderr, "fingerprint %s\n", plan.Fingerprint())
	return nil
}

// RenderCmd renders the annotated HTML of a document to stdout or a file.
type RenderCmd struct {
	Document    string `arg:"" type:"existingfile" help:"Document text file"`
	Annotations string `name:"annotations" short:"a" type:"existingfile" optional:"" help:"Annotation JSON"`
	View        string `name:"view" default:"source" enum:"source,markdown" help:"View to render"`
	Output      string `name:"output" short:"o" optional:"" help:"Write HTML to this file instead of stdout"`
}

func (c *RenderCmd) Run() error {
	text, err := loadDocument(c.Document)
	if err != nil {
		return err
	}
	anns, err := loadAnnotations(c.Annotations)
	if err != nil {
		return err
	}

	var html string
	switch c.View {
	case "markdown":
		mapper := markdown.NewMapper()
		result, err := mapper.Render(text, anns)
		if err != nil {
			return err
		}
		html = result.HTML
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning %s: %s\n", w.AnnotationID, w.Reason)
		}
		for _, d := range result.Dropped {
			fmt.Fprintf(os.Stderr, "dropped %s: %s\n", d.Annotation.ID.String(), d.Reason)
		}
	default:
		plan := segmenter.Compute(text, anns)
		html = render.RenderSource(text, plan.Segments)
		for _, d := range plan.Dropped {
			fmt.Fprintf(os.Stderr, "dropped %s: %s\n", d.Annotation.ID.String(), d.Reason)
		}
	}

	if c.Output != "" {
		return os.WriteFile(c.Output, []byte(html), 0o644)
	}
	fmt.Println(html)
	return nil
}

// InspectCmd reports how raw annotation JSON classifies after the defensive
// decode: state, target span, body shape, and offset validity when the
// document is supplied.
type InspectCmd struct {
	Annotations string `arg:"" type:"existingfile" help:"Annotation JSON file"`
	Document    string `name:"document" short:"d" type:"existingfile" optional:"" help:"Validate target offsets against this document"`
	JSONLD      bool   `name:"jsonld" help:"Re-emit each annotation as canonical JSON-LD"`
}

func (c *InspectCmd) Run() error {
	anns, err := loadAnnotations(c.Annotations)
	if err != nil {
		return err
	}

	docLen := -1
	if c.Document != "" {
		text, err := loadDocument(c.Document)
		if err != nil {
			return err
		}
		docLen = len(text)
	}

	if c.JSONLD {
		for _, a := range anns {
			payload, err := models.EncodeAnnotation(a)
			if err != nil {
				return fmt.Errorf("encode %s: %w", a.ID.String(), err)
			}
			fmt.Println(string(payload))
		}
		return nil
	}

	for i, a := range anns {
		fmt.Printf("%d. %s\n", i+1, a.ID.String())
		fmt.Printf("   state      %s\n", a.State())
		fmt.Printf("   motivation %s\n", a.Motivation.String())
		fmt.Printf("   target     [%d,%d) %q\n", a.Target.Start, a.Target.End, a.Target.Exact)
		if a.Target.Prefix != "" || a.Target.Suffix != "" {
			fmt.Printf("   context    prefix=%q suffix=%q\n", a.Target.Prefix, a.Target.Suffix)
		}
		switch a.Body.Kind {
		case models.BodyKindTextual:
			fmt.Printf("   body       text %q\n", a.Body.Value)
		case models.BodyKindResource:
			fmt.Printf("   body       resource %s\n", a.Body.Source)
			if len(a.Body.EntityTypes) > 0 {
				fmt.Printf("   entities   %v\n", a.Body.EntityTypes)
			}
		default:
			fmt.Printf("   body       empty\n")
		}
		if a.Creator != "" {
			fmt.Printf("   creator    %s\n", a.Creator)
		}
		if !a.Created.IsZero() {
			fmt.Printf("   created    %s\n", a.Created.UTC().Format(time.RFC3339))
		}
		if docLen >= 0 {
			if a.Target.ValidFor(docLen) {
				fmt.Printf("   offsets    valid for %d-byte document\n", docLen)
			} else {
				fmt.Printf("   offsets    INVALID for %d-byte document (excluded from rendering)\n", docLen)
			}
		}
	}
	fmt.Printf("%d annotation(s)\n", len(anns))
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Println("annotctl v1.0.0")
	fmt.Println("offline annotation positioning and rendering toolkit")
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("annotctl"),
		kong.Description("Offline tooling for the marginalia annotation pipeline"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
