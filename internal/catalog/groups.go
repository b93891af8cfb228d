package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"shellac/internal/services"
)

// ReplaceGroups atomically swaps the stored duplicate groups for the given
// set. The previous groups are dropped in the same transaction so readers
// never observe a partial resolution. Every group must carry at least two
// members and exactly one primary.
func (s *Store) ReplaceGroups(ctx context.Context, groups []DuplicateGroup) error {
	for _, group := range groups {
		if len(group.Members) < 2 {
			return services.Wrap(services.ErrConfiguration, "catalog", "replace groups",
				fmt.Sprintf("group %s has %d members", group.ID, len(group.Members)), nil)
		}
		primaries := 0
		for _, member := range group.Members {
			if member.IsPrimary {
				primaries++
			}
		}
		if primaries != 1 {
			return services.Wrap(services.ErrConfiguration, "catalog", "replace groups",
				fmt.Sprintf("group %s has %d primaries", group.ID, primaries), nil)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin groups tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM duplicate_members`); err != nil {
		return fmt.Errorf("clear duplicate members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM duplicate_groups`); err != nil {
		return fmt.Errorf("clear duplicate groups: %w", err)
	}

	now := formatTime(time.Now())
	for _, group := range groups {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO duplicate_groups (id, full_hash, created_at) VALUES (?, ?, ?)`,
			group.ID, group.FullHash, now,
		); err != nil {
			return fmt.Errorf("insert group %s: %w", group.ID, err)
		}
		for _, member := range group.Members {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO duplicate_members (group_id, source_path, quality_score, is_primary)
                 VALUES (?, ?, ?, ?)`,
				group.ID, member.SourcePath, member.QualityScore, member.IsPrimary,
			); err != nil {
				return fmt.Errorf("insert member %s: %w", member.SourcePath, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit groups: %w", err)
	}
	return nil
}

// ListGroups returns stored duplicate groups ordered by reclaimable size,
// largest first. A limit of zero returns everything.
func (s *Store) ListGroups(ctx context.Context, limit, offset int) ([]DuplicateGroup, error) {
	query := `SELECT g.id, g.full_hash, m.source_path, m.quality_score, m.is_primary, f.size_bytes
              FROM duplicate_groups g
              JOIN duplicate_members m ON m.group_id = g.id
              JOIN files f ON f.source_path = m.source_path
              ORDER BY g.id, m.is_primary DESC, m.quality_score DESC, m.source_path`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var (
		groups  []DuplicateGroup
		current *DuplicateGroup
	)
	for rows.Next() {
		var (
			id, hash string
			member   GroupMember
		)
		if err := rows.Scan(&id, &hash, &member.SourcePath, &member.QualityScore, &member.IsPrimary, &member.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if current == nil || current.ID != id {
			groups = append(groups, DuplicateGroup{ID: id, FullHash: hash})
			current = &groups[len(groups)-1]
		}
		current.Members = append(current.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortGroupsByReclaimable(groups)

	if offset > 0 {
		if offset >= len(groups) {
			return nil, nil
		}
		groups = groups[offset:]
	}
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups, nil
}

// GroupStats reports the group count, total duplicate files, and total
// reclaimable bytes across all stored groups.
func (s *Store) GroupStats(ctx context.Context) (groupCount, duplicateFiles int, reclaimable int64, err error) {
	groups, err := s.ListGroups(ctx, 0, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	for _, group := range groups {
		groupCount++
		duplicateFiles += len(group.Members) - 1
		reclaimable += group.ReclaimableBytes()
	}
	return groupCount, duplicateFiles, reclaimable, nil
}

func sortGroupsByReclaimable(groups []DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		left, right := groups[i].ReclaimableBytes(), groups[j].ReclaimableBytes()
		if left != right {
			return left > right
		}
		return groups[i].ID < groups[j].ID
	})
}
