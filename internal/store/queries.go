package store

import "context"

// AddQuery creates a query row (spec §3, §6 "addquery"). website=0 means
// global.
func (h *Handle) AddQuery(q Query) (id uint64, err error) {
	err = h.withRetry(func() error {
		res, execErr := h.conn.ExecContext(context.Background(), `
			INSERT INTO queries
				(website, name, text, kind, result_bool, result_single, result_multi, text_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.WebsiteID, q.Name, q.Text, q.Kind, q.ResultBool, q.ResultSingle, q.ResultMulti, q.TextOnly)
		if execErr != nil {
			return execErr
		}
		lastID, idErr := res.LastInsertId()
		if idErr != nil {
			return idErr
		}
		id = uint64(lastID)
		return nil
	})
	return id, err
}

// UpdateQuery overwrites an existing query's fields; queries are immutable
// per *reference* within a run (spec §3) but may still be edited between
// runs through the control endpoint.
func (h *Handle) UpdateQuery(q Query) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(), `
			UPDATE queries SET
				name = ?, text = ?, kind = ?,
				result_bool = ?, result_single = ?, result_multi = ?, text_only = ?
			WHERE id = ?`,
			q.Name, q.Text, q.Kind, q.ResultBool, q.ResultSingle, q.ResultMulti, q.TextOnly, q.ID)
		return execErr
	})
}

// DeleteQuery removes a query row by id.
func (h *Handle) DeleteQuery(id uint64) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(), "DELETE FROM queries WHERE id = ?", id)
		return execErr
	})
}

// GetQuery fetches one query by id, used by the QueryEngine to compile it
// once per worker start (spec §4.3).
func (h *Handle) GetQuery(id uint64) (q Query, err error) {
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(), `
			SELECT id, website, name, text, kind, result_bool, result_single, result_multi, text_only
			FROM queries WHERE id = ?`, id)
		return row.Scan(&q.ID, &q.WebsiteID, &q.Name, &q.Text, &q.Kind,
			&q.ResultBool, &q.ResultSingle, &q.ResultMulti, &q.TextOnly)
	})
	return q, err
}

// DuplicateQuery creates a copy of an existing query, named "<name> (copy)"
// (spec §6 "duplicatequery").
func (h *Handle) DuplicateQuery(id uint64) (newID uint64, err error) {
	q, err := h.GetQuery(id)
	if err != nil {
		return 0, err
	}
	q.ID = 0
	q.Name = q.Name + " (copy)"
	return h.AddQuery(q)
}

// ListQueriesByWebsite fetches every Query belonging to websiteID, used by
// the control endpoint's deletewebsite/duplicatewebsite cascades.
func (h *Handle) ListQueriesByWebsite(websiteID uint64) (out []Query, err error) {
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(), `
			SELECT id, website, name, text, kind, result_bool, result_single, result_multi, text_only
			FROM queries WHERE website = ?`, websiteID)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			var q Query
			if scanErr := rows.Scan(&q.ID, &q.WebsiteID, &q.Name, &q.Text, &q.Kind,
				&q.ResultBool, &q.ResultSingle, &q.ResultMulti, &q.TextOnly); scanErr != nil {
				return scanErr
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	return out, err
}
