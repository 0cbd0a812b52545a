package domain

import (
	"fmt"
	"strings"
)

const (
	noRelationKey    = "-"
	relatedKeyPrefix = "msg:"
)

// RelatedTo groups a message with siblings answering the same originating
// request. The zero value is NoRelation, which only ever equals another
// NoRelation.
type RelatedTo struct {
	messageID string
}

var NoRelation = RelatedTo{}

// RelatedToMessage returns NoRelation for a blank id.
func RelatedToMessage(id string) RelatedTo {
	return RelatedTo{messageID: strings.TrimSpace(id)}
}

func (r RelatedTo) IsNone() bool { return r.messageID == "" }

func (r RelatedTo) MessageID() (string, bool) {
	return r.messageID, r.messageID != ""
}

// Key is the persisted grouping key. It is never empty, so equality on the
// column cannot accidentally match or miss the way NULL comparison would.
func (r RelatedTo) Key() string {
	if r.IsNone() {
		return noRelationKey
	}
	return relatedKeyPrefix + r.messageID
}

func (r RelatedTo) String() string {
	if r.IsNone() {
		return "none"
	}
	return r.messageID
}

func ParseRelatedToKey(key string) (RelatedTo, error) {
	switch {
	case key == noRelationKey:
		return NoRelation, nil
	case strings.HasPrefix(key, relatedKeyPrefix) && len(key) > len(relatedKeyPrefix):
		return RelatedTo{messageID: strings.TrimPrefix(key, relatedKeyPrefix)}, nil
	}
	return NoRelation, fmt.Errorf("invalid related-to key %q", key)
}
