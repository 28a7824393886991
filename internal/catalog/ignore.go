package catalog

import (
	"context"

	"github.com/Iron-Ham/stagectl/internal/ignore"
)

// SetIgnored adds id to the ignore list. It reports false when id was
// already ignored, in which case the stored message is kept.
func (c *Catalog) SetIgnored(ctx context.Context, id int64, message string) (bool, error) {
	if err := c.checkGuard(ctx); err != nil {
		return false, err
	}
	added, err := c.ignores.Add(ctx, id, message)
	if added {
		c.Invalidate()
	}
	return added, err
}

// IsIgnored reports whether id is on the ignore list.
func (c *Catalog) IsIgnored(ctx context.Context, id int64) (bool, error) {
	if c.ignores == nil {
		return false, nil
	}
	_, ok, err := c.ignores.Lookup(ctx, id)
	return ok, err
}

// Unignore removes id from the ignore list.
func (c *Catalog) Unignore(ctx context.Context, id int64) (bool, error) {
	if err := c.checkGuard(ctx); err != nil {
		return false, err
	}
	removed, err := c.ignores.Remove(ctx, id)
	if removed {
		c.Invalidate()
	}
	return removed, err
}

// UnignoreAll empties the ignore list and returns the number of entries
// removed.
func (c *Catalog) UnignoreAll(ctx context.Context) (int, error) {
	if err := c.checkGuard(ctx); err != nil {
		return 0, err
	}
	n, err := c.ignores.Clear(ctx)
	if n > 0 {
		c.Invalidate()
	}
	return n, err
}

// Ignored returns the ignore-list entries ordered by id.
func (c *Catalog) Ignored(ctx context.Context) ([]ignore.Entry, error) {
	if c.ignores == nil {
		return nil, nil
	}
	return c.ignores.Entries(ctx)
}

// SaveIgnores persists the ignore list if it changed.
func (c *Catalog) SaveIgnores(ctx context.Context) error {
	if err := c.checkGuard(ctx); err != nil {
		return err
	}
	return c.ignores.Save(ctx)
}
