// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"encoding/json"
	"strings"
)

// Node types of the rich text tree.
const (
	NodeDocument  = "document"
	NodeParagraph = "paragraph"
	NodeText      = "text"
	NodeHyperlink = "hyperlink"
)

// Node is one node of a rich text document. Text nodes carry Value and
// Marks; container nodes carry Content.
type Node struct {
	NodeType string
	Data     map[string]any
	Content  []Node
	Value    string
	Marks    []any
}

type textJSON struct {
	NodeType string         `json:"nodeType"`
	Value    string         `json:"value"`
	Marks    []any          `json:"marks"`
	Data     map[string]any `json:"data"`
}

type containerJSON struct {
	NodeType string         `json:"nodeType"`
	Data     map[string]any `json:"data"`
	Content  []Node         `json:"content"`
}

// MarshalJSON writes text nodes with value and marks, and every other node
// with content. Empty data, marks and content are written as {} and [].
func (n Node) MarshalJSON() ([]byte, error) {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	if n.NodeType == NodeText {
		marks := n.Marks
		if marks == nil {
			marks = []any{}
		}
		return json.Marshal(textJSON{NodeType: n.NodeType, Value: n.Value, Marks: marks, Data: data})
	}
	content := n.Content
	if content == nil {
		content = []Node{}
	}
	return json.Marshal(containerJSON{NodeType: n.NodeType, Data: data, Content: content})
}

// UnmarshalJSON reads either node form.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		NodeType string         `json:"nodeType"`
		Data     map[string]any `json:"data"`
		Content  []Node         `json:"content"`
		Value    string         `json:"value"`
		Marks    []any          `json:"marks"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = Node{NodeType: raw.NodeType, Data: raw.Data, Content: raw.Content, Value: raw.Value, Marks: raw.Marks}
	return nil
}

func text(s string) Node {
	return Node{NodeType: NodeText, Value: s}
}

// RichText renders prose as a document. Blank lines separate paragraphs.
func RichText(s string) Node {
	doc := Node{NodeType: NodeDocument}
	for _, para := range strings.Split(strings.TrimSpace(s), "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" && len(doc.Content) > 0 {
			continue
		}
		doc.Content = append(doc.Content, Node{NodeType: NodeParagraph, Content: []Node{text(para)}})
	}
	return doc
}

// Hyperlink renders a URL as a document holding one linked paragraph.
func Hyperlink(uri string) Node {
	link := Node{
		NodeType: NodeHyperlink,
		Data:     map[string]any{"uri": uri},
		Content:  []Node{text(uri)},
	}
	return Node{NodeType: NodeDocument, Content: []Node{
		{NodeType: NodeParagraph, Content: []Node{text(""), link, text("")}},
	}}
}
