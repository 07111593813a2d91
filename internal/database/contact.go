package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/voipbridge/voipbridge/internal/database/models"
)

// contactRepo implements ContactRepository.
type contactRepo struct {
	db *DB
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *DB) ContactRepository {
	return &contactRepo{db: db}
}

const contactColumns = `id, name, phone, mobile, email, company, created_at`

// Create inserts a new contact.
func (r *contactRepo) Create(ctx context.Context, c *models.Contact) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO contacts (name, phone, mobile, email, company)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Phone, c.Mobile, c.Email, c.Company,
	)
	if err != nil {
		return fmt.Errorf("inserting contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetByID returns a contact by ID.
func (r *contactRepo) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id,
	))
}

// FindByPhone matches a contact whose phone or mobile contains the cleaned
// number, falling back to the raw number. Returns nil when nothing matches.
func (r *contactRepo) FindByPhone(ctx context.Context, cleaned, raw string) (*models.Contact, error) {
	if cleaned == "" && raw == "" {
		return nil, nil
	}
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE phone LIKE ? OR mobile LIKE ? OR phone LIKE ?
		 ORDER BY id LIMIT 1`,
		"%"+cleaned+"%", "%"+cleaned+"%", "%"+raw+"%",
	))
}

// Search returns contacts whose name, phone or mobile contains the query.
func (r *contactRepo) Search(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	q := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE name LIKE ? OR phone LIKE ? OR mobile LIKE ?
		 ORDER BY name LIMIT ?`, q, q, q, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}
	defer rows.Close()

	return collectContacts(rows)
}

// List returns a page of contacts plus the total count.
func (r *contactRepo) List(ctx context.Context, limit, offset int) ([]models.Contact, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting contacts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 ORDER BY name LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	contacts, err := collectContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func collectContacts(rows *sql.Rows) ([]models.Contact, error) {
	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Mobile,
			&c.Email, &c.Company, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contact rows: %w", err)
	}
	return contacts, nil
}

func (r *contactRepo) scanOne(row *sql.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Mobile, &c.Email,
		&c.Company, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning contact: %w", err)
	}
	return &c, nil
}
