package storage

import (
	"context"
	"fmt"
	"time"
)

// Client is a row of clientes, keyed by the Discord user id.
type Client struct {
	ID              int64
	DiscordID       string
	Username        string
	Email           string
	CreatedAt       time.Time
	TotalTransports int64
	Verified        bool
}

const clientColumns = `id, discord_id, username, email, data_criacao, total_transportes, status_verificado`

func scanClient(sc interface{ Scan(...any) error }) (*Client, error) {
	var c Client
	if err := sc.Scan(&c.ID, &c.DiscordID, &c.Username, &c.Email, &c.CreatedAt, &c.TotalTransports, &c.Verified); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetClient returns the client for a Discord id or ErrNotFound.
func (q *Queries) GetClient(ctx context.Context, discordID string) (*Client, error) {
	row, err := q.queryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE discord_id = ?`, discordID)
	if err != nil {
		return nil, err
	}
	return scanClient(row)
}

// GetClientByID returns the client by row id or ErrNotFound.
func (q *Queries) GetClientByID(ctx context.Context, id int64) (*Client, error) {
	row, err := q.queryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return scanClient(row)
}

// GetOrCreateClient returns the client for discordID, creating it on first contact.
// A changed username is refreshed.
func (q *Queries) GetOrCreateClient(ctx context.Context, discordID, username string) (*Client, error) {
	if discordID == "" {
		return nil, fmt.Errorf("discord id is empty")
	}
	_, err := q.exec(ctx,
		`INSERT INTO clientes (discord_id, username, data_criacao) VALUES (?, ?, ?)
         ON CONFLICT (discord_id) DO UPDATE SET
           username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE clientes.username END`,
		discordID, username, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert client: %w", err)
	}
	return q.GetClient(ctx, discordID)
}

// IncrementClientTransports bumps the client's concluded transport counter.
func (q *Queries) IncrementClientTransports(ctx context.Context, clientID int64) error {
	res, err := q.exec(ctx, `UPDATE clientes SET total_transportes = total_transportes + 1 WHERE id = ?`, clientID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
