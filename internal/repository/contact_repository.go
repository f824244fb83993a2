package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

type ContactListFilter struct {
	Search          string
	Status          model.ContactStatus
	EngagementLevel model.EngagementLevel
	Tags            []string
	Sort            db.Sort
	Page            db.Page
}

// ContactUpdate is sparse: nil fields are left untouched.
type ContactUpdate struct {
	FirstName *string
	LastName  *string
	Source    *string
	Tags      *[]string
	Status    *model.ContactStatus
}

func (u ContactUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Source == nil && u.Tags == nil && u.Status == nil
}

// ImportedContact is one validated, batch-deduplicated CSV row.
type ImportedContact struct {
	Email     string
	FirstName string
	LastName  string
	Tags      []string
}

// ContactRepositoryInterface defines methods used by the contact and campaign services
type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, id string) (*model.Contact, error)
	GetByEmail(ctx context.Context, email string) (*model.Contact, error)
	List(ctx context.Context, f ContactListFilter) ([]*model.Contact, int, error)
	ListAll(ctx context.Context, f ContactListFilter) ([]*model.Contact, error)
	Update(ctx context.Context, id string, u ContactUpdate) (*model.Contact, error)
	Delete(ctx context.Context, id string) error
	FindByEmails(ctx context.Context, emails []string) ([]*model.Contact, error)
	UpsertImported(ctx context.Context, row ImportedContact, source, token string) (bool, error)
	AddTags(ctx context.Context, ids, tags []string) (int, error)
	RemoveTags(ctx context.Context, ids, tags []string) (int, error)
	SetStatus(ctx context.Context, ids []string, status model.ContactStatus) (int, error)
	SetStatusByEmail(ctx context.Context, email string, status model.ContactStatus) error
	UpdateEngagement(ctx context.Context, email string, level model.EngagementLevel, templateCode string) (bool, error)
	Unsubscribe(ctx context.Context, token string) (bool, error)
	CountAudience(ctx context.Context, filter model.AudienceFilter, scope AudienceScope) (int, error)
	PreviewAudience(ctx context.Context, filter model.AudienceFilter, sample int) (int, []*model.Contact, error)
	DistinctTags(ctx context.Context) ([]string, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

func NewContactRepository(pool *sql.DB) *ContactRepository {
	return &ContactRepository{DB: pool}
}

var contactSortColumns = db.SortColumns{
	"email":            "email",
	"first_name":       "first_name",
	"last_name":        "last_name",
	"status":           "status",
	"engagement_level": "engagement_level",
	"source":           "source",
	"created_at":       "created_at",
	"last_email_at":    "last_email_at",
}

var contactColumnList = []string{
	"id", "email", "first_name", "last_name", "source", "tags", "status", "engagement_level", "templates_received",
	"unsubscribe_token", "last_email_at", "last_opened_at", "last_clicked_at", "unsubscribed_at", "created_at", "updated_at",
}

var contactColumns = strings.Join(contactColumnList, ", ")

// contactColumnsAs qualifies every contact column with alias.
func contactColumnsAs(alias string) string {
	cols := make([]string, len(contactColumnList))
	for i, c := range contactColumnList {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Source, pq.Array(&c.Tags), &c.Status, &c.EngagementLevel,
		pq.Array(&c.TemplatesReceived), &c.UnsubscribeToken, &c.LastEmailAt, &c.LastOpenedAt, &c.LastClickedAt,
		&c.UnsubscribedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*model.Contact, error) {
	defer rows.Close()
	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO marketing_contacts (id, email, first_name, last_name, source, tags, status, engagement_level,
			templates_received, unsubscribe_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}', $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.DB.QueryRowContext(ctx, query,
		c.ID, c.Email, c.FirstName, c.LastName, c.Source, pq.Array(nonNil(c.Tags)), c.Status, c.EngagementLevel, c.UnsubscribeToken,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return appErrors.Conflict(fmt.Sprintf("a contact with email %s already exists", c.Email))
	}
	return err
}

// GetByID fetches a contact by ID
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	c, err := scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM marketing_contacts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("contact", id)
	}
	return c, err
}

// GetByEmail returns nil, nil when no contact has that email.
func (r *ContactRepository) GetByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c, err := scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM marketing_contacts WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *ContactRepository) listWhere(f ContactListFilter, args *db.Args) db.Where {
	var where db.Where
	if s := strings.TrimSpace(f.Search); s != "" {
		p := args.Add("%" + s + "%")
		where.And("(email ILIKE " + p + " OR first_name ILIKE " + p + " OR last_name ILIKE " + p +
			" OR (COALESCE(first_name, '') || ' ' || COALESCE(last_name, '')) ILIKE " + p + ")")
	}
	if f.Status != "" {
		where.And("status = " + args.Add(f.Status))
	}
	if f.EngagementLevel != "" {
		where.And("engagement_level = " + args.Add(f.EngagementLevel))
	}
	if len(f.Tags) > 0 {
		where.And("tags && " + args.Add(pq.Array(f.Tags)) + "::text[]")
	}
	return where
}

func (r *ContactRepository) List(ctx context.Context, f ContactListFilter) ([]*model.Contact, int, error) {
	var args db.Args
	where := r.listWhere(f, &args)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM marketing_contacts`+where.String(), args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + contactColumns + ` FROM marketing_contacts` + where.String() +
		db.OrderBy(f.Sort, contactSortColumns, "created_at") + f.Page.Limit(&args)
	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	contacts, err := scanContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// ListAll is List without pagination, used by the CSV export.
func (r *ContactRepository) ListAll(ctx context.Context, f ContactListFilter) ([]*model.Contact, error) {
	var args db.Args
	where := r.listWhere(f, &args)
	query := `SELECT ` + contactColumns + ` FROM marketing_contacts` + where.String() +
		db.OrderBy(f.Sort, contactSortColumns, "created_at")
	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, err
	}
	return scanContacts(rows)
}

// Update writes only the supplied fields. Moving to unsubscribed stamps unsubscribed_at.
func (r *ContactRepository) Update(ctx context.Context, id string, u ContactUpdate) (*model.Contact, error) {
	if u.Empty() {
		return r.GetByID(ctx, id)
	}
	var args db.Args
	var sets []string
	if u.FirstName != nil {
		sets = append(sets, "first_name = "+args.Add(*u.FirstName))
	}
	if u.LastName != nil {
		sets = append(sets, "last_name = "+args.Add(*u.LastName))
	}
	if u.Source != nil {
		sets = append(sets, "source = "+args.Add(*u.Source))
	}
	if u.Tags != nil {
		sets = append(sets, "tags = "+args.Add(pq.Array(model.MergeTags(nil, *u.Tags))))
	}
	if u.Status != nil {
		sets = append(sets, "status = "+args.Add(*u.Status))
		if *u.Status == model.ContactUnsubscribed {
			sets = append(sets, "unsubscribed_at = NOW()")
		}
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE marketing_contacts SET ` + strings.Join(sets, ", ") +
		` WHERE id = ` + args.Add(id) + ` RETURNING ` + contactColumns
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, args.Values()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NotFound("contact", id)
	}
	return c, err
}

func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM marketing_contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NotFound("contact", id)
	}
	return nil
}

func (r *ContactRepository) FindByEmails(ctx context.Context, emails []string) ([]*model.Contact, error) {
	if len(emails) == 0 {
		return []*model.Contact{}, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM marketing_contacts WHERE email = ANY($1) ORDER BY email`, pq.Array(emails))
	if err != nil {
		return nil, err
	}
	return scanContacts(rows)
}

// UpsertImported inserts a new contact or merges into the existing one.
// Existing contacts gain only the tags they lack, and keep their names unless the import supplies non-empty ones.
// It reports whether the row was inserted.
func (r *ContactRepository) UpsertImported(ctx context.Context, row ImportedContact, source, token string) (bool, error) {
	query := `
		INSERT INTO marketing_contacts AS mc (id, email, first_name, last_name, source, tags, status, engagement_level,
			templates_received, unsubscribe_token, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, 'active', 'none', '{}', $7, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(EXCLUDED.first_name, mc.first_name),
			last_name = COALESCE(EXCLUDED.last_name, mc.last_name),
			tags = mc.tags || ARRAY(SELECT t FROM unnest(EXCLUDED.tags) AS t WHERE NOT (t = ANY(mc.tags))),
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.DB.QueryRowContext(ctx, query,
		uuid.NewString(), row.Email, row.FirstName, row.LastName, source, pq.Array(nonNil(row.Tags)), token,
	).Scan(&inserted)
	return inserted, err
}

func (r *ContactRepository) AddTags(ctx context.Context, ids, tags []string) (int, error) {
	query := `
		UPDATE marketing_contacts
		SET tags = tags || ARRAY(SELECT t FROM unnest($2::text[]) AS t WHERE NOT (t = ANY(tags))), updated_at = NOW()
		WHERE id = ANY($1)
	`
	return r.execCount(ctx, query, pq.Array(ids), pq.Array(model.MergeTags(nil, tags)))
}

// RemoveTags drops every occurrence of each named tag.
func (r *ContactRepository) RemoveTags(ctx context.Context, ids, tags []string) (int, error) {
	query := `
		UPDATE marketing_contacts
		SET tags = ARRAY(SELECT t FROM unnest(tags) AS t WHERE NOT (t = ANY($2::text[]))), updated_at = NOW()
		WHERE id = ANY($1)
	`
	return r.execCount(ctx, query, pq.Array(ids), pq.Array(tags))
}

func (r *ContactRepository) SetStatus(ctx context.Context, ids []string, status model.ContactStatus) (int, error) {
	query := `
		UPDATE marketing_contacts
		SET status = $2::text,
		    unsubscribed_at = CASE WHEN $2::text = 'unsubscribed' THEN NOW() ELSE unsubscribed_at END,
		    updated_at = NOW()
		WHERE id = ANY($1)
	`
	return r.execCount(ctx, query, pq.Array(ids), string(status))
}

// SetStatusByEmail applies a delivery-driven status. An unsubscribed contact keeps
// its opt-out, and a bounced contact can only move on to complained.
func (r *ContactRepository) SetStatusByEmail(ctx context.Context, email string, status model.ContactStatus) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE marketing_contacts
		SET status = $2::text, updated_at = NOW()
		WHERE email = $1
		  AND (status = 'active' OR (status = 'bounced' AND $2::text = 'complained'))
	`, email, string(status))
	return err
}

var engagementStampColumns = map[model.EngagementLevel]string{
	model.EngagementSent:    "last_email_at",
	model.EngagementOpened:  "last_opened_at",
	model.EngagementClicked: "last_clicked_at",
}

// engagementRankSQL renders the none<sent<opened<clicked ranking as a CASE expression over expr.
func engagementRankSQL(expr string) string {
	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(expr)
	for _, l := range model.EngagementLevels {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", l, l.Rank())
	}
	b.WriteString(" ELSE 0 END")
	return b.String()
}

// UpdateEngagement upgrades the stored level only when the new level outranks it.
// Read and write happen inside one UPDATE so concurrent webhook deliveries cannot regress the level.
func (r *ContactRepository) UpdateEngagement(ctx context.Context, email string, level model.EngagementLevel, templateCode string) (bool, error) {
	stamp, ok := engagementStampColumns[level]
	if !ok {
		return false, appErrors.Validation("level", fmt.Sprintf("unsupported engagement event %q", level))
	}
	query := `
		UPDATE marketing_contacts
		SET engagement_level = CASE WHEN ` + engagementRankSQL("engagement_level") + ` < $2 THEN $3::text ELSE engagement_level END,
		    ` + stamp + ` = NOW(),
		    templates_received = CASE
		        WHEN $4::text = '' OR $4::text = ANY(templates_received) THEN templates_received
		        ELSE array_append(templates_received, $4::text)
		    END,
		    updated_at = NOW()
		WHERE email = $1
	`
	n, err := r.execCount(ctx, query, email, level.Rank(), string(level), templateCode)
	return n > 0, err
}

// Unsubscribe flips an active contact to unsubscribed. Any other state or unknown token reports false.
func (r *ContactRepository) Unsubscribe(ctx context.Context, token string) (bool, error) {
	n, err := r.execCount(ctx, `
		UPDATE marketing_contacts
		SET status = 'unsubscribed', unsubscribed_at = NOW(), updated_at = NOW()
		WHERE unsubscribe_token = $1 AND status = 'active'
	`, token)
	return n > 0, err
}

func (r *ContactRepository) CountAudience(ctx context.Context, filter model.AudienceFilter, scope AudienceScope) (int, error) {
	var args db.Args
	where := audienceWhere(filter, scope, "c", &args)
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM marketing_contacts c`+where.String(), args.Values()...).Scan(&count)
	return count, err
}

func (r *ContactRepository) PreviewAudience(ctx context.Context, filter model.AudienceFilter, sample int) (int, []*model.Contact, error) {
	count, err := r.CountAudience(ctx, filter, ScopePreview)
	if err != nil {
		return 0, nil, err
	}
	if sample <= 0 || count == 0 {
		return count, []*model.Contact{}, nil
	}

	var args db.Args
	where := audienceWhere(filter, ScopePreview, "c", &args)
	query := `SELECT ` + contactColumnsAs("c") + ` FROM marketing_contacts c` + where.String() +
		` ORDER BY c.created_at DESC LIMIT ` + args.Add(sample)
	rows, err := r.DB.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return 0, nil, err
	}
	contacts, err := scanContacts(rows)
	return count, contacts, err
}

func (r *ContactRepository) DistinctTags(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT unnest(tags) AS tag FROM marketing_contacts ORDER BY tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *ContactRepository) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
