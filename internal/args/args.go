// Package args turns the mixed node stream of a chat command — plain
// text, user mentions, inline images, nested groups — into a validated
// argument set for generation.
package args

// Node is one element of the command body.
type Node interface {
	isNode()
}

// Text is a run of plain text, tokenized with shell-like rules.
type Text string

// Mention references a user by platform identity.
type Mention struct {
	UserID int64
}

// Image references image bytes by URL.
type Image struct {
	URL string
}

// Group nests further nodes; it is flattened depth-first.
type Group []Node

func (Text) isNode()    {}
func (Mention) isNode() {}
func (Image) isNode()   {}
func (Group) isNode()   {}

// ImageRef is an unresolved pointer to image bytes: either a direct
// URL or a user identity whose avatar is looked up later. Exactly one
// field is set.
type ImageRef struct {
	URL    string
	UserID int64
}

// IsUser reports whether the reference is a user-identity avatar
// lookup rather than a direct URL.
func (r ImageRef) IsUser() bool {
	return r.UserID != 0
}

// Parsed is the validated argument set of one invocation.
type Parsed struct {
	Images  []ImageRef
	Texts   []string
	Options map[string]any
}
