// Package assemble turns a rewritten Dynamic.js and its template into a
// named, sized variation.
package assemble

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
)

// Default dimensions when the entry HTML declares no ad.size.
const (
	DefaultWidth  = 300
	DefaultHeight = 250
)

// IDPrefix starts every variation identifier.
const IDPrefix = "banner-"

// TimestampLayout formats the time component of variation names.
const TimestampLayout = "20060102T150405"

// idFields are the row columns tried, in order, for the id part of a name.
var idFields = []string{"id", "ID", "Id", "row_id", "offer_id", "offerId", "creative_id", "name"}

var adSizeContent = regexp.MustCompile(`width\s*=\s*(\d+)\s*,\s*height\s*=\s*(\d+)`)

var nameStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// RowContext carries the row-specific inputs of a variation.
type RowContext struct {
	Row  map[string]string
	Tier api.Tier
	// Prefix starts the variation name, e.g. the template name.
	Prefix string
	// IDField names the row column that identifies the row, if known.
	IDField string
	// Warnings produced earlier in the pipeline, copied onto the variation.
	Warnings []api.Warning
}

// Assembler builds variations. The zero value is ready to use.
type Assembler struct {
	// NewID returns a fresh variation identifier; defaults to NewID.
	NewID func() string
	// Now returns the generation time; defaults to time.Now.
	Now func() time.Time
}

// Assemble copies the template with Dynamic.js replaced by rewritten, and
// derives the variation's name, identifier and dimensions. When the
// template has no Dynamic.js and rewritten is empty, the files pass through
// unchanged.
func (a *Assembler) Assemble(b *bundle.Bundle, rewritten string, rc RowContext) (*api.Variation, error) {
	if b == nil {
		return nil, fmt.Errorf("assemble: nil template")
	}
	if b.EntryHTML == "" {
		return nil, bundle.ErrNoEntryHTML
	}

	files := b.Clone()
	if b.HasDynamicJS() || rewritten != "" {
		files = b.WithDynamicJS(rewritten)
	}

	width, height := AdSize(files.EntryHTMLText())
	return &api.Variation{
		Name:     Name(rc.Prefix, rowID(rc), rc.Row[rc.Tier.Column()], a.now()),
		BannerID: a.newID(),
		HTMLFile: files.EntryHTML,
		Width:    width,
		Height:   height,
		Tier:     rc.Tier,
		Warnings: append([]api.Warning(nil), rc.Warnings...),
		Files:    files.Files,
		Order:    files.Order,
	}, nil
}

func (a *Assembler) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return NewID()
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func rowID(rc RowContext) string {
	if rc.IDField != "" {
		if v := strings.TrimSpace(rc.Row[rc.IDField]); v != "" {
			return v
		}
	}
	for _, f := range idFields {
		if v := strings.TrimSpace(rc.Row[f]); v != "" {
			return v
		}
	}
	return ""
}

// NewID returns "banner-" followed by a time-ordered UUID.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return IDPrefix + id.String()
}

// Name joins the non-empty parts with '_' and strips every character outside
// [a-zA-Z0-9_-]. A zero timestamp is left out.
func Name(prefix, id, offer string, ts time.Time) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{prefix, id, offer} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if !ts.IsZero() {
		parts = append(parts, ts.UTC().Format(TimestampLayout))
	}
	return Sanitize(strings.Join(parts, "_"))
}

// Sanitize strips every character outside [a-zA-Z0-9_-].
func Sanitize(s string) string {
	return nameStrip.ReplaceAllString(s, "")
}

// AdSize returns the dimensions declared by the first
// <meta name="ad.size" content="width=W,height=H"> tag, or 300x250.
func AdSize(entryHTML string) (width, height int) {
	z := html.NewTokenizer(strings.NewReader(entryHTML))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return DefaultWidth, DefaultHeight
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Meta {
				continue
			}
			var name, content string
			for _, attr := range tok.Attr {
				switch strings.ToLower(attr.Key) {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if !strings.EqualFold(strings.TrimSpace(name), "ad.size") {
				continue
			}
			m := adSizeContent.FindStringSubmatch(content)
			if m == nil {
				continue
			}
			w, errW := strconv.Atoi(m[1])
			h, errH := strconv.Atoi(m[2])
			if errW != nil || errH != nil || w == 0 || h == 0 {
				continue
			}
			return w, h
		}
	}
}
