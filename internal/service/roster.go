package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"net/mail"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fitleague/internal/apperr"
	"fitleague/internal/store"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}$`)
)

// NewAthlete is one athlete to onboard
type NewAthlete struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Gender string `json:"gender"`
}

// CreatedAthlete carries the one-time temporary password alongside the user
type CreatedAthlete struct {
	User         *store.User `json:"user"`
	TempPassword string      `json:"temp_password"`
}

// ImportRow is the outcome for one roster record
type ImportRow struct {
	Index        int    `json:"index"`
	Email        string `json:"email"`
	Status       string `json:"status"` // "created", "rejected" or "failed"
	AthleteID    string `json:"athlete_id,omitempty"`
	TempPassword string `json:"temp_password,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// ImportReport summarizes a roster import
type ImportReport struct {
	Rows     []ImportRow `json:"rows"`
	Created  int         `json:"created"`
	Rejected int         `json:"rejected"`
	Failed   int         `json:"failed"`
}

// Roster manages tenants and their athletes
type Roster struct {
	db            *store.DB
	bcryptCost    int
	defaultPrefix string
	random        io.Reader
	log           *zap.Logger
}

// NewRoster creates a Roster. defaultPrefix is used for clients created
// without their own athlete id prefix.
func NewRoster(db *store.DB, bcryptCost int, defaultPrefix string, log *zap.Logger) *Roster {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Roster{
		db:            db,
		bcryptCost:    bcryptCost,
		defaultPrefix: defaultPrefix,
		random:        rand.Reader,
		log:           log,
	}
}

// CreateClient registers a tenant
func (r *Roster) CreateClient(ctx context.Context, name, slug, prefix string) (*store.Client, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = r.defaultPrefix
	}

	switch {
	case name == "":
		return nil, apperr.New(apperr.CodeValidation, "client name is required")
	case !slugPattern.MatchString(slug):
		return nil, apperr.New(apperr.CodeValidation, "slug must be lowercase letters, digits and dashes")
	case !prefixPattern.MatchString(prefix):
		return nil, apperr.New(apperr.CodeValidation, "athlete id prefix must be 1-6 uppercase letters or digits")
	}

	c := &store.Client{Name: name, Slug: slug, AthleteIDPrefix: prefix}
	if err := r.db.CreateClient(ctx, c); err != nil {
		return nil, storeErr(err)
	}
	r.log.Info("client created", zap.Int64("client_id", c.ID), zap.String("slug", slug))
	return c, nil
}

// GetClient returns a tenant
func (r *Roster) GetClient(ctx context.Context, id int64) (*store.Client, error) {
	c, err := r.db.GetClient(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// ListAthletes returns a tenant's roster
func (r *Roster) ListAthletes(ctx context.Context, clientID int64) ([]store.User, error) {
	if _, err := r.db.GetClient(ctx, clientID); err != nil {
		return nil, storeErr(err)
	}
	users, err := r.db.ListUsersByClient(ctx, clientID)
	if err != nil {
		return nil, storeErr(err)
	}
	return users, nil
}

// CreateAthlete onboards one athlete with a generated athlete id and a
// temporary password. Only the bcrypt hash is stored.
func (r *Roster) CreateAthlete(ctx context.Context, clientID int64, in NewAthlete) (*CreatedAthlete, error) {
	client, err := r.db.GetClient(ctx, clientID)
	if err != nil {
		return nil, storeErr(err)
	}
	return r.createAthlete(ctx, client, in)
}

// ImportAthletes onboards each record independently and reports per-row
// outcomes. An unknown client fails the whole import.
func (r *Roster) ImportAthletes(ctx context.Context, clientID int64, records []NewAthlete) (*ImportReport, error) {
	client, err := r.db.GetClient(ctx, clientID)
	if err != nil {
		return nil, storeErr(err)
	}

	report := &ImportReport{Rows: make([]ImportRow, 0, len(records))}
	for i, rec := range records {
		row := ImportRow{Index: i, Email: strings.TrimSpace(rec.Email)}

		created, err := r.createAthlete(ctx, client, rec)
		switch {
		case err == nil:
			row.Status = "created"
			row.AthleteID = created.User.AthleteID
			row.TempPassword = created.TempPassword
			report.Created++
		case apperr.IsCode(err, apperr.CodeValidation), apperr.IsCode(err, apperr.CodeConflict):
			row.Status = "rejected"
			row.Reason = apperr.From(err).Message
			report.Rejected++
		default:
			row.Status = "failed"
			row.Reason = err.Error()
			report.Failed++
		}
		report.Rows = append(report.Rows, row)
	}

	r.log.Info("roster imported",
		zap.Int64("client_id", clientID),
		zap.Int("created", report.Created),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// SetActive toggles an athlete's account status
func (r *Roster) SetActive(ctx context.Context, userID int64, active bool) error {
	if err := r.db.SetUserActive(ctx, userID, active); err != nil {
		return storeErr(err)
	}
	return nil
}

// UpdateProfile applies a partial profile edit
func (r *Roster) UpdateProfile(ctx context.Context, userID int64, upd store.UserUpdate) (*store.User, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperr.New(apperr.CodeValidation, "name must not be empty")
		}
		upd.Name = &name
	}
	if upd.Gender != nil {
		gender, err := normalizeGender(*upd.Gender)
		if err != nil {
			return nil, err
		}
		upd.Gender = &gender
	}

	if err := r.db.UpdateUser(ctx, userID, upd); err != nil {
		return nil, storeErr(err)
	}
	u, err := r.db.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *Roster) createAthlete(ctx context.Context, client *store.Client, in NewAthlete) (*CreatedAthlete, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil || addr.Address != strings.TrimSpace(in.Email) {
		return nil, apperr.Newf(apperr.CodeValidation, "invalid email %q", in.Email)
	}
	gender, err := normalizeGender(in.Gender)
	if err != nil {
		return nil, err
	}

	password, err := r.randomString(passwordAlphabet, TempPasswordLength)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "generating password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "hashing password")
	}

	prefix := client.AthleteIDPrefix
	if prefix == "" {
		prefix = r.defaultPrefix
	}

	for attempt := 0; attempt < MaxAthleteIDAttempts; attempt++ {
		suffix, err := r.randomString(athleteIDAlphabet, AthleteIDSuffixLen)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "generating athlete id")
		}

		u := &store.User{
			ClientID:     client.ID,
			AthleteID:    prefix + suffix,
			Email:        addr.Address,
			Name:         name,
			Gender:       gender,
			PasswordHash: string(hash),
			Active:       true,
		}
		err = r.db.CreateUser(ctx, u)
		if errors.Is(err, store.ErrAthleteIDTaken) {
			r.log.Debug("athlete id collision, retrying", zap.String("athlete_id", u.AthleteID))
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		return &CreatedAthlete{User: u, TempPassword: password}, nil
	}
	return nil, apperr.New(apperr.CodeInternal, "could not allocate a unique athlete id")
}

func (r *Roster) randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(r.random, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

func normalizeGender(g string) (string, error) {
	g = strings.ToLower(strings.TrimSpace(g))
	if !slices.Contains(Genders, g) {
		return "", apperr.Newf(apperr.CodeValidation, "gender must be one of %s", strings.Join(Genders, ", "))
	}
	return g, nil
}

// CheckPassword reports whether password matches the user's stored hash
func CheckPassword(u *store.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// GetAthlete returns one athlete
func (r *Roster) GetAthlete(ctx context.Context, userID int64) (*store.User, error) {
	u, err := r.db.GetUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}
