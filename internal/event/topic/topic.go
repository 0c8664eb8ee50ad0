package topic

import "strings"

// Topic is a dot-separated event name or subscription pattern.
type Topic string

const (
	// WildcardSingle matches exactly one segment.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// Separator separates segments.
	Separator = "."
)

// String returns the topic as a string.
func (t Topic) String() string {
	return string(t)
}

// Segments splits the topic on the separator.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// IsWildcard reports whether the topic is a pattern.
func (t Topic) IsWildcard() bool {
	return strings.Contains(string(t), WildcardSingle)
}

// IsValid reports whether the topic is non-empty and has no empty segments.
func (t Topic) IsValid() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		if seg == "" {
			return false
		}
	}
	return true
}

// Matches reports whether the concrete topic t is selected by pattern.
func (t Topic) Matches(pattern Topic) bool {
	return match(t.Segments(), pattern.Segments())
}

func match(topic, pattern []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == WildcardMulti {
			for skip := 0; skip <= len(topic); skip++ {
				if match(topic[skip:], pattern[1:]) {
					return true
				}
			}
			return false
		}
		if len(topic) == 0 {
			return false
		}
		if head != WildcardSingle && head != topic[0] {
			return false
		}
		topic, pattern = topic[1:], pattern[1:]
	}
	return len(topic) == 0
}

// Join builds a topic from segments.
func Join(segments ...string) Topic {
	return Topic(strings.Join(segments, Separator))
}
