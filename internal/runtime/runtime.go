// Package runtime merges compiled module records into one ordered,
// deduplicated list and renders it as a single stylesheet.
package runtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one compiled module's contribution to a bundle. A nil ID marks
// a record without stable identity, which is never deduplicated.
type Record struct {
	ID        *int
	CSS       string
	Media     string
	SourceMap json.RawMessage
}

// NewRecord returns a record with a numeric id.
func NewRecord(id int, css, media string) Record {
	return Record{ID: &id, CSS: css, Media: media}
}

// Anonymous returns a record without identity.
func Anonymous(css, media string) Record {
	return Record{CSS: css, Media: media}
}

// MarshalJSON encodes the record as the tuple [id, css, media, map?].
func (r Record) MarshalJSON() ([]byte, error) {
	tuple := []any{r.ID, r.CSS, r.Media}
	if len(r.SourceMap) > 0 {
		tuple = append(tuple, r.SourceMap)
	}
	return json.Marshal(tuple)
}

// UnmarshalJSON decodes the tuple form written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) < 2 || len(tuple) > 4 {
		return fmt.Errorf("record tuple has %d elements, want 2 to 4", len(tuple))
	}
	*r = Record{}
	if err := json.Unmarshal(tuple[0], &r.ID); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &r.CSS); err != nil {
		return fmt.Errorf("record css: %w", err)
	}
	if len(tuple) > 2 {
		if err := json.Unmarshal(tuple[2], &r.Media); err != nil {
			return fmt.Errorf("record media: %w", err)
		}
	}
	if len(tuple) > 3 && !bytes.Equal(tuple[3], []byte("null")) {
		r.SourceMap = tuple[3]
	}
	return nil
}

// CombineMedia nests a record's own media query m under the media query q
// of the import that pulled it in.
func CombineMedia(m, q string) string {
	switch {
	case m == "" && q == "":
		return ""
	case m == "":
		return q
	case q == "":
		return m
	}
	return "(" + m + ") and (" + q + ")"
}

// List is an ordered, append-only sequence of records with a side index of
// ids already present. The zero value is ready to use.
type List struct {
	records []Record
	seen    map[int]bool
}

// Records returns the records in order.
func (l *List) Records() []Record {
	return l.records
}

// Len returns the number of records.
func (l *List) Len() int {
	return len(l.records)
}

func (l *List) mark(r Record) {
	if r.ID == nil {
		return
	}
	if l.seen == nil {
		l.seen = make(map[int]bool)
	}
	l.seen[*r.ID] = true
}

// Merge appends records that are not yet present, combining each record's
// media with media. Records with a nil id are always appended.
func (l *List) Merge(records []Record, media string) {
	for _, r := range records {
		if r.ID != nil && l.seen[*r.ID] {
			continue
		}
		r.Media = CombineMedia(r.Media, media)
		l.mark(r)
		l.records = append(l.records, r)
	}
}

// Push appends the module's own record last.
func (l *List) Push(r Record) {
	l.mark(r)
	l.records = append(l.records, r)
}

// Merge builds a list from dependency lists, each governed by the media of
// the import that pulled it in, followed by the module's own record.
func Merge(deps []Dependency, own *Record) *List {
	l := &List{}
	for _, d := range deps {
		l.Merge(d.Records, d.Media)
	}
	if own != nil {
		l.Push(*own)
	}
	return l
}

// Dependency is one record list and the media it was imported under.
type Dependency struct {
	Records []Record
	Media   string
}

// String renders the list without source maps.
func (l *List) String() string {
	return l.Render(false)
}

// Render concatenates the records in order. A record with media is wrapped
// in "@media <query>{...}". With withMaps, records carrying a source map
// get a trailing base64 data url annotation.
func (l *List) Render(withMaps bool) string {
	var b strings.Builder
	for _, r := range l.records {
		css := r.CSS
		if withMaps && len(r.SourceMap) > 0 {
			css += annotation(r.SourceMap)
		}
		if r.Media != "" {
			b.WriteString("@media ")
			b.WriteString(r.Media)
			b.WriteByte('{')
			b.WriteString(css)
			b.WriteByte('}')
			continue
		}
		b.WriteString(css)
	}
	return b.String()
}

// annotation returns the source map comments appended to a record: the map
// as a base64 data url, and one sourceURL comment per source.
func annotation(sourceMap json.RawMessage) string {
	var b strings.Builder
	var sm struct {
		SourceRoot string   `json:"sourceRoot"`
		Sources    []string `json:"sources"`
	}
	_ = json.Unmarshal(sourceMap, &sm)
	b.WriteByte('\n')
	for _, src := range sm.Sources {
		fmt.Fprintf(&b, "/*# sourceURL=%s%s */\n", sm.SourceRoot, src)
	}
	b.WriteString("/*# sourceMappingURL=data:application/json;charset=utf-8;base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(sourceMap))
	b.WriteString(" */")
	return b.String()
}
