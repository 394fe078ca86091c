package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/grant-matcher/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type ListParams struct {
	Query    string
	Agency   string
	Type     string // "grant", "rfp", or "" for all
	OnlyOpen bool
	Limit    int
	Offset   int
}

type ListResult struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

// selectCols is the full opportunity column list shared by all queries.
const selectCols = `id, source_id, source_domain, title, description,
	agency_name, agency_code, opportunity_number, external_url, location,
	contact_info, category, opp_type, amount_raw, amount_min, amount_max,
	currency, open_at, close_at, close_date_raw, is_rolling,
	applicant_types, eligible_entities, funding_activity_categories,
	created_at, updated_at`

func scanOpportunity(scan func(dest ...interface{}) error) (models.Opportunity, error) {
	var o models.Opportunity
	err := scan(
		&o.ID, &o.SourceID, &o.SourceDomain, &o.Title, &o.Description,
		&o.AgencyName, &o.AgencyCode, &o.OpportunityNumber, &o.ExternalURL, &o.Location,
		&o.ContactInfo, &o.Category, &o.Type, &o.AmountRaw, &o.AmountMin, &o.AmountMax,
		&o.Currency, &o.OpenAt, &o.CloseAt, &o.CloseDateRaw, &o.IsRolling,
		&o.ApplicantTypes, &o.EligibleEntities, &o.FundingActivityCategories,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// UpsertOpportunities writes an ingested batch. Re-ingesting the same
// export updates rows in place because CSV-derived IDs are stable.
func (s *Store) UpsertOpportunities(ctx context.Context, opps []models.Opportunity) (int, error) {
	count := 0
	for i := range opps {
		o := &opps[i]
		_, err := s.pool.Exec(ctx, `
			INSERT INTO opportunities (
				id, source_id, source_domain, title, description,
				agency_name, agency_code, opportunity_number, external_url, location,
				contact_info, category, opp_type, amount_raw, amount_min, amount_max,
				currency, open_at, close_at, close_date_raw, is_rolling,
				applicant_types, eligible_entities, funding_activity_categories,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
			)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				agency_name = EXCLUDED.agency_name,
				amount_raw = EXCLUDED.amount_raw,
				amount_min = EXCLUDED.amount_min,
				amount_max = EXCLUDED.amount_max,
				currency = EXCLUDED.currency,
				open_at = EXCLUDED.open_at,
				close_at = EXCLUDED.close_at,
				close_date_raw = EXCLUDED.close_date_raw,
				is_rolling = EXCLUDED.is_rolling,
				applicant_types = EXCLUDED.applicant_types,
				eligible_entities = EXCLUDED.eligible_entities,
				funding_activity_categories = EXCLUDED.funding_activity_categories,
				updated_at = NOW()
		`,
			o.ID, o.SourceID, o.SourceDomain, o.Title, o.Description,
			o.AgencyName, o.AgencyCode, o.OpportunityNumber, o.ExternalURL, o.Location,
			o.ContactInfo, o.Category, o.Type, o.AmountRaw, o.AmountMin, o.AmountMax,
			o.Currency, o.OpenAt, o.CloseAt, o.CloseDateRaw, o.IsRolling,
			o.ApplicantTypes, o.EligibleEntities, o.FundingActivityCategories,
			o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return count, fmt.Errorf("upsert opportunity %s: %w", o.ID, err)
		}
		count++
	}
	return count, nil
}

// buildListWhere constructs the WHERE clause for opportunity listing.
func buildListWhere(params ListParams) (string, []interface{}, int) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if params.Agency != "" {
		where += fmt.Sprintf(" AND agency_name = $%d", argIdx)
		args = append(args, params.Agency)
		argIdx++
	}
	if params.Type != "" {
		where += fmt.Sprintf(" AND opp_type = $%d", argIdx)
		args = append(args, strings.ToLower(params.Type))
		argIdx++
	}
	if params.OnlyOpen {
		where += " AND (is_rolling = true OR close_at IS NULL OR close_at >= NOW())"
	}
	return where, args, argIdx
}

func (s *Store) ListOpportunities(ctx context.Context, params ListParams) (*ListResult, error) {
	where, args, argIdx := buildListWhere(params)

	var total int
	countSQL := "SELECT COUNT(*) FROM opportunities " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM opportunities %s", selectCols, where)
	selectSQL += " ORDER BY close_at ASC NULLS LAST, created_at DESC"

	if params.Limit <= 0 {
		params.Limit = 100
	}
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	if opps == nil {
		opps = []models.Opportunity{}
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	sql := fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", selectCols)
	row := s.pool.QueryRow(ctx, sql, id)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// User is an account row. Auth lives above this layer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	u := &User{Email: email, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id",
		email, passwordHash,
	).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, password_hash FROM users WHERE email = $1",
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetProfile assembles the full requester profile, including learned
// preferences when present.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*models.RequesterProfile, error) {
	p := &models.RequesterProfile{UserID: userID.String()}
	var bpRaw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT entity_type, funding_types, timeline, interests, keywords,
		       positive_keywords, negative_keywords, business_profile
		FROM profiles WHERE user_id = $1
	`, userID).Scan(
		&p.EntityType, &p.FundingTypes, &p.Timeline, &p.Interests, &p.Keywords,
		&p.PositiveKeywords, &p.NegativeKeywords, &bpRaw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(bpRaw) > 0 {
		var bp models.BusinessProfile
		if json.Unmarshal(bpRaw, &bp) == nil {
			p.BusinessProfile = &bp
		}
	}

	prefs, err := s.GetLearnedPreferences(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	p.Preferences = prefs
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID uuid.UUID, p *models.RequesterProfile) error {
	var bpRaw []byte
	if p.BusinessProfile != nil {
		raw, err := json.Marshal(p.BusinessProfile)
		if err != nil {
			return fmt.Errorf("encode business profile: %w", err)
		}
		bpRaw = raw
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (
			user_id, entity_type, funding_types, timeline, interests,
			keywords, positive_keywords, negative_keywords, business_profile, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			funding_types = EXCLUDED.funding_types,
			timeline = EXCLUDED.timeline,
			interests = EXCLUDED.interests,
			keywords = EXCLUDED.keywords,
			positive_keywords = EXCLUDED.positive_keywords,
			negative_keywords = EXCLUDED.negative_keywords,
			business_profile = EXCLUDED.business_profile,
			updated_at = NOW()
	`, userID, p.EntityType, p.FundingTypes, p.Timeline, p.Interests,
		p.Keywords, p.PositiveKeywords, p.NegativeKeywords, bpRaw)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) InsertActionEvent(ctx context.Context, ev *models.ActionEvent) error {
	var snapRaw []byte
	if ev.Snapshot != nil {
		raw, err := json.Marshal(ev.Snapshot)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		snapRaw = raw
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO action_events (user_id, action, opportunity_id, snapshot)
		VALUES ($1, $2, $3, $4)
	`, ev.UserID, ev.Action, ev.OpportunityID, snapRaw)
	if err != nil {
		return fmt.Errorf("insert action event: %w", err)
	}
	return nil
}

// ListActionEvents returns a user's full action history, oldest first.
func (s *Store) ListActionEvents(ctx context.Context, userID string) ([]models.ActionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, action, opportunity_id, snapshot, created_at
		FROM action_events WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list action events: %w", err)
	}
	defer rows.Close()

	var events []models.ActionEvent
	for rows.Next() {
		var ev models.ActionEvent
		var snapRaw []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Action, &ev.OpportunityID, &snapRaw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action event: %w", err)
		}
		if len(snapRaw) > 0 {
			var snap models.Opportunity
			if json.Unmarshal(snapRaw, &snap) == nil {
				ev.Snapshot = &snap
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveLearnedPreferences replaces the stored preference set for a user.
func (s *Store) SaveLearnedPreferences(ctx context.Context, userID string, prefs models.LearnedPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO learned_preferences (user_id, preferences, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			preferences = EXCLUDED.preferences,
			updated_at = NOW()
	`, userID, raw)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *Store) GetLearnedPreferences(ctx context.Context, userID uuid.UUID) (*models.LearnedPreferences, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		"SELECT preferences FROM learned_preferences WHERE user_id = $1", userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var prefs models.LearnedPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &prefs, nil
}
