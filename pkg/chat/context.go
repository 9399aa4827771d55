package chat

type contextOptions struct {
	regenContent    string
	hasRegen        bool
	withoutTrailing bool
}

type ContextOption func(*contextOptions)

// WithRegenContent replaces the text of the most recent user message while
// keeping its attachments, and drops everything after it.
func WithRegenContent(content string) ContextOption {
	return func(o *contextOptions) {
		o.regenContent = content
		o.hasRegen = true
	}
}

// WithoutTrailingGroup excludes the last group, typically an assistant
// placeholder that is still being filled in.
func WithoutTrailingGroup() ContextOption {
	return func(o *contextOptions) {
		o.withoutTrailing = true
	}
}

// ContextFor selects the conversations to send to a backend: the active
// variant of each group past the reset marker, in order. The session is not
// modified.
func ContextFor(s *Session, options ...ContextOption) []*Conversation {
	opts := &contextOptions{}
	for _, opt := range options {
		opt(opts)
	}

	groups := s.AdjustedGroups()
	if opts.withoutTrailing && len(groups) > 0 {
		groups = groups[:len(groups)-1]
	}

	if opts.hasRegen {
		lastUser := -1
		for i, g := range groups {
			if g.Role() == RoleUser {
				lastUser = i
			}
		}
		if lastUser >= 0 {
			groups = groups[:lastUser+1]
		}
	}

	var ret []*Conversation
	for i, g := range groups {
		c := g.ActiveConversation()
		if c == nil {
			continue
		}
		if c.IsReplying && c.Content == "" {
			continue
		}
		if opts.hasRegen && i == len(groups)-1 && c.Role == RoleUser {
			sub := c.Copy()
			sub.Content = opts.regenContent
			ret = append(ret, sub)
			continue
		}
		ret = append(ret, c)
	}
	return ret
}
