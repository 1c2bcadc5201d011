package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

// writeDeclaration emits the standalone XML declaration the schema
// requires: <?xml version="1.0" standalone="yes"?>.
func writeDeclaration(w io.Writer) error {
	_, err := io.WriteString(w, `<?xml version="1.0" standalone="yes"?>`+"\n")
	return err
}

// requestElem renders the <request> element. Unlike comment elements,
// nil fields are skipped entirely rather than emitted as empty tags
// (skip_none=true in the schema note).
func requestElem(enc *xml.Encoder, itypeID int64, iID *int64, authorID *int64, start, end *time.Time) error {
	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "request"}}); err != nil {
		return err
	}
	if err := writeIntTag(enc, "i_id", iID); err != nil {
		return err
	}
	if err := writeIntTag(enc, "itype_id", &itypeID); err != nil {
		return err
	}
	if err := writeIntTag(enc, "author_id", authorID); err != nil {
		return err
	}
	if err := writeTimeTag(enc, "start", start); err != nil {
		return err
	}
	if err := writeTimeTag(enc, "end", end); err != nil {
		return err
	}
	return enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "request"}})
}

func writeIntTag(enc *xml.Encoder, name string, v *int64) error {
	if v == nil {
		return nil
	}
	return writeTextElem(enc, name, fmt.Sprintf("%d", *v))
}

func writeTimeTag(enc *xml.Encoder, name string, v *time.Time) error {
	if v == nil {
		return nil
	}
	return writeTextElem(enc, name, v.UTC().Format("2006-01-02T15:04:05.000Z"))
}

func writeTextElem(enc *xml.Encoder, name, text string) error {
	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
		return err
	}
	if text != "" {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

// writeCommentElem renders a <comment> (or <root>) element with every
// column present, including nulls rendered as empty tags (skip_none=false
// per the schema note — this is the opposite convention from <request>).
func writeCommentElem(enc *xml.Encoder, tag string, c *types.Comment) error {
	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: tag}}); err != nil {
		return err
	}
	fields := []struct {
		name string
		val  string
	}{
		{"id", fmt.Sprintf("%d", c.ID)},
		{"itype_id", fmt.Sprintf("%d", c.ItypeID)},
		{"i_id", fmt.Sprintf("%d", c.IID)},
		{"author_id", fmt.Sprintf("%d", c.AuthorID)},
		{"content", c.Content},
		{"created", c.Created.UTC().Format("2006-01-02T15:04:05.000Z")},
		{"updated", c.Updated.UTC().Format("2006-01-02T15:04:05.000Z")},
		{"tree_id", fmt.Sprintf("%d", c.TreeID)},
		{"parent_id", parentIDString(c.ParentID)},
		{"children_cnt", fmt.Sprintf("%d", c.ChildrenCnt)},
		{"scale", fmt.Sprintf("%d", c.Scale)},
	}
	for _, f := range fields {
		if err := writeTextElem(enc, f.name, f.val); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: tag}})
}

func parentIDString(id *int64) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%d", *id)
}
