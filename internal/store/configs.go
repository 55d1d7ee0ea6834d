package store

import (
	"context"
	"encoding/json"
)

// AddConfig creates a configuration row, serialising its body (array of
// {cat,name,value} triples) as JSON, parsed once per worker start
// (spec §3).
func (h *Handle) AddConfig(c Configuration) (id uint64, err error) {
	body, err := json.Marshal(c.Items)
	if err != nil {
		return 0, err
	}
	err = h.withRetry(func() error {
		res, execErr := h.conn.ExecContext(context.Background(),
			"INSERT INTO configs (website, module, name, body) VALUES (?, ?, ?, ?)",
			c.WebsiteID, c.Module, c.Name, body)
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

// UpdateConfig overwrites an existing configuration's body.
func (h *Handle) UpdateConfig(c Configuration) error {
	body, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(),
			"UPDATE configs SET name = ?, body = ? WHERE id = ?", c.Name, body, c.ID)
		return execErr
	})
}

// DeleteConfig removes a configuration row by id.
func (h *Handle) DeleteConfig(id uint64) error {
	return h.withRetry(func() error {
		_, execErr := h.conn.ExecContext(context.Background(), "DELETE FROM configs WHERE id = ?", id)
		return execErr
	})
}

// GetConfig fetches and parses one configuration by id.
func (h *Handle) GetConfig(id uint64) (c Configuration, err error) {
	var body []byte
	err = h.withRetry(func() error {
		row := h.conn.QueryRowContext(context.Background(),
			"SELECT id, website, module, name, body FROM configs WHERE id = ?", id)
		return row.Scan(&c.ID, &c.WebsiteID, &c.Module, &c.Name, &body)
	})
	if err != nil {
		return c, err
	}
	if len(body) > 0 {
		if jsonErr := json.Unmarshal(body, &c.Items); jsonErr != nil {
			return c, jsonErr
		}
	}
	return c, nil
}

// DuplicateConfig creates a copy of an existing configuration.
func (h *Handle) DuplicateConfig(id uint64) (newID uint64, err error) {
	c, err := h.GetConfig(id)
	if err != nil {
		return 0, err
	}
	c.ID = 0
	c.Name = c.Name + " (copy)"
	return h.AddConfig(c)
}

// ListConfigsByWebsite fetches every Configuration belonging to websiteID,
// used by the control endpoint's deletewebsite/duplicatewebsite cascades.
func (h *Handle) ListConfigsByWebsite(websiteID uint64) (out []Configuration, err error) {
	type row struct {
		id     uint64
		module Module
		name   string
		body   []byte
	}
	var rowsOut []row
	err = h.withRetry(func() error {
		rows, queryErr := h.conn.QueryContext(context.Background(),
			"SELECT id, module, name, body FROM configs WHERE website = ?", websiteID)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		rowsOut = nil
		for rows.Next() {
			var r row
			if scanErr := rows.Scan(&r.id, &r.module, &r.name, &r.body); scanErr != nil {
				return scanErr
			}
			rowsOut = append(rowsOut, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rowsOut {
		c := Configuration{ID: r.id, WebsiteID: websiteID, Module: r.module, Name: r.name}
		if len(r.body) > 0 {
			if jsonErr := json.Unmarshal(r.body, &c.Items); jsonErr != nil {
				return nil, jsonErr
			}
		}
		out = append(out, c)
	}
	return out, nil
}
