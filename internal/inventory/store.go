// Package inventory exports generated plans to MariaDB so that address
// allocations and route tables can be audited after a run.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"hubspoke-planner/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS plan_block (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		run_id VARCHAR(64) NOT NULL,
		branch_index INT NOT NULL,
		kind VARCHAR(8) NOT NULL,
		network VARCHAR(64) NOT NULL,
		INDEX idx_plan_block_run (run_id)
	)`,
	`CREATE TABLE IF NOT EXISTS plan_interface (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		run_id VARCHAR(64) NOT NULL,
		node_id VARCHAR(32) NOT NULL,
		role VARCHAR(16) NOT NULL,
		if_name VARCHAR(32) NOT NULL,
		address VARCHAR(64) NULL,
		INDEX idx_plan_interface_run (run_id)
	)`,
	`CREATE TABLE IF NOT EXISTS plan_route (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		run_id VARCHAR(64) NOT NULL,
		seq INT NOT NULL,
		owner VARCHAR(32) NOT NULL,
		destination VARCHAR(64) NOT NULL,
		next_hop VARCHAR(64) NOT NULL,
		INDEX idx_plan_route_run (run_id, owner)
	)`,
}

type MariaDBStore struct {
	db *sql.DB
}

func NewMariaDBStore(dsn string) (*MariaDBStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &MariaDBStore{db: db}, nil
}

func (s *MariaDBStore) Close() {
	s.db.Close()
}

func (s *MariaDBStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SavePlan replaces every row of runID with the given plan, topology and
// routes. Either all rows are written or none.
func (s *MariaDBStore) SavePlan(ctx context.Context, runID string, plan *model.Plan, topo *model.Topology, routes *model.RouteSet) error {
	if runID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"plan_block", "plan_interface", "plan_route"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, b := range plan.Branches {
		for _, blk := range []struct {
			kind string
			net  *net.IPNet
		}{{"wan", b.WAN.Network}, {"lan", b.LAN.Network}} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO plan_block (run_id, branch_index, kind, network) VALUES (?, ?, ?, ?)",
				runID, b.Index, blk.kind, blk.net.String()); err != nil {
				return fmt.Errorf("failed to save branch %d %s block: %w", b.Index, blk.kind, err)
			}
		}
	}

	for _, n := range topo.Nodes {
		for _, iface := range n.Interfaces {
			var addr sql.NullString
			if iface.Address != nil {
				addr = sql.NullString{String: iface.CIDR(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO plan_interface (run_id, node_id, role, if_name, address) VALUES (?, ?, ?, ?, ?)",
				runID, n.ID, string(n.Role), iface.Name, addr); err != nil {
				return fmt.Errorf("failed to save interface %s: %w", iface.Name, err)
			}
		}
	}

	for i, r := range routes.Entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO plan_route (run_id, seq, owner, destination, next_hop) VALUES (?, ?, ?, ?, ?)",
			runID, i, r.Owner, r.Destination.String(), r.NextHop.String()); err != nil {
			return fmt.Errorf("failed to save route %s: %w", r, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

// LoadRoutes returns the routes saved for owner under runID in generation order.
func (s *MariaDBStore) LoadRoutes(ctx context.Context, runID, owner string) ([]model.RouteEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT destination, next_hop FROM plan_route WHERE run_id = ? AND owner = ? ORDER BY seq ASC",
		runID, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RouteEntry
	for rows.Next() {
		var dst, gw string
		if err := rows.Scan(&dst, &gw); err != nil {
			return nil, err
		}
		_, ipnet, err := net.ParseCIDR(dst)
		if err != nil {
			return nil, fmt.Errorf("invalid stored destination %q: %w", dst, err)
		}
		ip := net.ParseIP(gw)
		if ip == nil {
			return nil, fmt.Errorf("invalid stored next hop %q", gw)
		}
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		entries = append(entries, model.RouteEntry{Destination: ipnet, NextHop: ip, Owner: owner})
	}
	return entries, rows.Err()
}
