package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

// memDB is an in-memory stand-in for the Postgres schema. It enforces the same
// uniqueness and optimistic-locking rules as the SQL repositories and shares one
// event outbox between them.
type memDB struct {
	mu sync.Mutex
	n  int

	applications map[string]*models.Application
	internships  map[string]*models.Internship
	attendance   map[string]*models.AttendanceRecord
	activities   []models.ActivityLog
	evaluations  []models.Evaluation
	certificates map[string]*models.Certificate
	reports      map[string]*models.InternshipReport
	sagas        map[string]*models.SagaRun
	events       []models.LifecycleEvent
	sequences    map[string]int64

	certificateCreates int
}

func newMemDB() *memDB {
	return &memDB{
		applications: make(map[string]*models.Application),
		internships:  make(map[string]*models.Internship),
		attendance:   make(map[string]*models.AttendanceRecord),
		certificates: make(map[string]*models.Certificate),
		reports:      make(map[string]*models.InternshipReport),
		sagas:        make(map[string]*models.SagaRun),
		sequences:    make(map[string]int64),
	}
}

func (db *memDB) nextID(prefix string) string {
	db.n++
	return fmt.Sprintf("%s-%d", prefix, db.n)
}

// appendEvent must be called with db.mu held.
func (db *memDB) appendEvent(event *models.LifecycleEvent, entityID string, sequence int64) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = db.nextID("evt")
	}
	if event.EntityID == "" {
		event.EntityID = entityID
	}
	event.Sequence = sequence
	db.events = append(db.events, *event)
}

func (db *memDB) eventsFor(entity models.EntityType, id string) []models.LifecycleEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.LifecycleEvent
	for _, e := range db.events {
		if e.EntityType == entity && e.EntityID == id {
			out = append(out, e)
		}
	}
	return out
}

func (db *memDB) internshipCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.internships)
}

func (db *memDB) certificateCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.certificates)
}

func (db *memDB) onlyInternship() *models.Internship {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, in := range db.internships {
		cp := *in
		return &cp
	}
	return nil
}

// memApplications implements applicationStore.
type memApplications struct{ db *memDB }

func (r memApplications) Create(_ context.Context, app *models.Application, event *models.LifecycleEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.applications {
		if existing.OfferID == app.OfferID && existing.StudentID == app.StudentID && !existing.Status.Terminal() {
			return repository.ErrDuplicateApplication
		}
	}
	app.ID = r.db.nextID("app")
	app.Version = 1
	app.UpdatedAt = app.SubmittedAt
	cp := *app
	r.db.applications[app.ID] = &cp
	r.db.appendEvent(event, app.ID, 1)
	return nil
}

func (r memApplications) GetByID(_ context.Context, id string) (*models.Application, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	app, ok := r.db.applications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *app
	return &cp, nil
}

func (r memApplications) List(_ context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Application
	for _, app := range r.db.applications {
		if filter.StudentID != "" && app.StudentID != filter.StudentID {
			continue
		}
		if filter.OfferID != "" && app.OfferID != filter.OfferID {
			continue
		}
		out = append(out, *app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memApplications) Transition(_ context.Context, p repository.ApplicationTransitionParams, event *models.LifecycleEvent) (*models.Application, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	app, ok := r.db.applications[p.ID]
	if !ok || app.Status != p.From || app.Version != p.ExpectedVersion {
		return nil, repository.ErrStaleWrite
	}
	if p.To == models.ApplicationAccepted && p.ExclusiveAccept {
		for _, other := range r.db.applications {
			if other.ID != app.ID && other.OfferID == app.OfferID && other.Status == models.ApplicationAccepted {
				return nil, repository.ErrOfferFilled
			}
		}
	}
	app.Status = p.To
	app.Version++
	app.UpdatedAt = p.At
	if p.ReviewerID != nil {
		reviewer := *p.ReviewerID
		app.ReviewerID = &reviewer
		at := p.At
		app.ReviewedAt = &at
	}
	if p.RejectionReason != nil {
		reason := *p.RejectionReason
		app.RejectionReason = &reason
	}
	r.db.appendEvent(event, app.ID, app.Version)
	cp := *app
	return &cp, nil
}

// memInternships implements internshipStore.
type memInternships struct{ db *memDB }

func (r memInternships) CreateFromApplication(_ context.Context, in *models.Internship, event *models.LifecycleEvent) (*models.Internship, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.internships {
		if existing.ApplicationID == in.ApplicationID {
			cp := *existing
			return &cp, false, nil
		}
	}
	in.ID = r.db.nextID("int")
	in.Version = 1
	in.UpdatedAt = in.CreatedAt
	cp := *in
	r.db.internships[in.ID] = &cp
	r.db.appendEvent(event, in.ID, 1)
	out := cp
	return &out, true, nil
}

func (r memInternships) GetByID(_ context.Context, id string) (*models.Internship, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	in, ok := r.db.internships[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *in
	return &cp, nil
}

func (r memInternships) List(_ context.Context, filter models.InternshipFilter) ([]models.Internship, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Internship
	for _, in := range r.db.internships {
		if filter.StudentID != "" && in.StudentID != filter.StudentID {
			continue
		}
		if filter.SupervisorID != "" && !isSupervisorOf(in, filter.SupervisorID) {
			continue
		}
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memInternships) Transition(_ context.Context, p repository.InternshipTransitionParams, event *models.LifecycleEvent) (*models.Internship, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	in, ok := r.db.internships[p.ID]
	if !ok || in.Status != p.From || in.Version != p.ExpectedVersion {
		return nil, repository.ErrStaleWrite
	}
	in.Status = p.To
	in.Version++
	in.UpdatedAt = p.At
	if p.ActualEndDate != nil {
		end := *p.ActualEndDate
		in.ActualEndDate = &end
	}
	if p.TerminationReason != nil {
		reason := *p.TerminationReason
		in.TerminationReason = &reason
	}
	in.EarlyCompletion = in.EarlyCompletion || p.EarlyCompletion
	r.db.appendEvent(event, in.ID, in.Version)
	cp := *in
	return &cp, nil
}

func (r memInternships) AssignSupervisor(_ context.Context, id string, kind models.SupervisorKind, supervisorID string, expectedVersion int64) (*models.Internship, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	in, ok := r.db.internships[id]
	if !ok || in.Status.Terminal() || in.Version != expectedVersion {
		return nil, repository.ErrStaleWrite
	}
	in.Version++
	sup := supervisorID
	if kind == models.SupervisorAcademic {
		in.AcademicSupervisorID = &sup
	} else {
		in.SupervisorID = &sup
	}
	cp := *in
	return &cp, nil
}

// memAttendance implements attendanceStore.
type memAttendance struct{ db *memDB }

func (r memAttendance) Insert(_ context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := record.InternshipID + "|" + record.Date.Format("2006-01-02")
	if existing, ok := r.db.attendance[key]; ok {
		cp := *existing
		return &cp, false, nil
	}
	record.ID = r.db.nextID("att")
	cp := *record
	r.db.attendance[key] = &cp
	out := cp
	return &out, true, nil
}

func (r memAttendance) List(_ context.Context, internshipID string) ([]models.AttendanceRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.AttendanceRecord
	for _, rec := range r.db.attendance {
		if rec.InternshipID == internshipID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r memAttendance) Summary(_ context.Context, internshipID string) (models.AttendanceSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var s models.AttendanceSummary
	for _, rec := range r.db.attendance {
		if rec.InternshipID != internshipID {
			continue
		}
		switch rec.Status {
		case models.AttendancePresent:
			s.Present++
		case models.AttendanceAbsent:
			s.Absent++
		case models.AttendanceLate:
			s.Late++
		case models.AttendanceExcused:
			s.Excused++
		}
	}
	return s, nil
}

// memActivities implements activityStore.
type memActivities struct{ db *memDB }

func (r memActivities) Create(_ context.Context, entry *models.ActivityLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entry.ID = r.db.nextID("act")
	r.db.activities = append(r.db.activities, *entry)
	return nil
}

func (r memActivities) List(_ context.Context, internshipID string) ([]models.ActivityLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.ActivityLog
	for _, a := range r.db.activities {
		if a.InternshipID == internshipID {
			out = append(out, a)
		}
	}
	return out, nil
}

// memEvaluations implements evaluationStore, evaluationCounter and evaluationLister.
type memEvaluations struct{ db *memDB }

func (r memEvaluations) Create(_ context.Context, e *models.Evaluation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e.ID = r.db.nextID("eval")
	r.db.evaluations = append(r.db.evaluations, *e)
	return nil
}

func (r memEvaluations) ListByInternship(_ context.Context, internshipID string) ([]models.Evaluation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Evaluation
	for _, e := range r.db.evaluations {
		if e.InternshipID == internshipID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memEvaluations) CountByInternship(ctx context.Context, internshipID string) (int, error) {
	list, err := r.ListByInternship(ctx, internshipID)
	return len(list), err
}

// memCertificates implements certificateStore.
type memCertificates struct{ db *memDB }

func (r memCertificates) Create(_ context.Context, cert *models.Certificate, event *models.LifecycleEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.certificateCreates++
	for _, existing := range r.db.certificates {
		switch {
		case existing.InternshipID == cert.InternshipID:
			return repository.ErrCertificateExists
		case existing.CertificateNumber == cert.CertificateNumber:
			return repository.ErrCertificateNumberTaken
		case existing.VerificationCode == cert.VerificationCode:
			return repository.ErrVerificationCodeTaken
		}
	}
	cert.ID = r.db.nextID("cert")
	cp := *cert
	r.db.certificates[cert.ID] = &cp
	r.db.appendEvent(event, cert.ID, 1)
	return nil
}

func (r memCertificates) GetByID(_ context.Context, id string) (*models.Certificate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cert, ok := r.db.certificates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *cert
	return &cp, nil
}

func (r memCertificates) GetByInternshipID(_ context.Context, internshipID string) (*models.Certificate, error) {
	return r.find(func(c *models.Certificate) bool { return c.InternshipID == internshipID })
}

func (r memCertificates) GetByVerificationCode(_ context.Context, code string) (*models.Certificate, error) {
	return r.find(func(c *models.Certificate) bool { return c.VerificationCode == code })
}

func (r memCertificates) find(match func(*models.Certificate) bool) (*models.Certificate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cert := range r.db.certificates {
		if match(cert) {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

// memSequences implements SequenceAllocator. failures makes the next calls fail.
type memSequences struct {
	db       *memDB
	mu       sync.Mutex
	failures int
}

func (s *memSequences) Next(_ context.Context, institution string, year int) (int64, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return 0, errors.New("sequence backend unavailable")
	}
	s.mu.Unlock()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := fmt.Sprintf("%s/%d", institution, year)
	s.db.sequences[key]++
	return s.db.sequences[key], nil
}

// memReports implements reportStore.
type memReports struct{ db *memDB }

func (r memReports) Create(_ context.Context, report *models.InternshipReport) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	report.ID = r.db.nextID("rep")
	cp := *report
	r.db.reports[report.ID] = &cp
	return nil
}

func (r memReports) GetByID(_ context.Context, id string) (*models.InternshipReport, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	report, ok := r.db.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *report
	return &cp, nil
}

func (r memReports) ListByInternship(_ context.Context, internshipID string) ([]models.InternshipReport, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.InternshipReport
	for _, report := range r.db.reports {
		if report.InternshipID == internshipID {
			out = append(out, *report)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memReports) Review(_ context.Context, id, reviewerID string, score decimal.Decimal, feedback string, at time.Time) (*models.InternshipReport, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	report, ok := r.db.reports[id]
	if !ok || report.Status != models.ReportSubmitted {
		return nil, repository.ErrStaleWrite
	}
	s := score
	report.Score = &s
	report.Feedback = stringPtr(feedback)
	report.ReviewerID = &reviewerID
	report.ReviewedAt = &at
	report.Status = models.ReportReviewed
	cp := *report
	return &cp, nil
}

// memSagas implements sagaStore and staleSagaLister.
type memSagas struct{ db *memDB }

func (r memSagas) Begin(_ context.Context, kind models.SagaKind, key, triggerEventID string) (*models.SagaRun, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, run := range r.db.sagas {
		if run.Kind == kind && run.IdempotencyKey == key {
			cp := *run
			return &cp, false, nil
		}
	}
	now := time.Now().UTC()
	run := &models.SagaRun{
		ID:             r.db.nextID("saga"),
		Kind:           kind,
		IdempotencyKey: key,
		TriggerEventID: triggerEventID,
		Status:         models.SagaRunning,
		Step:           models.SagaStepStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.db.sagas[run.ID] = run
	cp := *run
	return &cp, true, nil
}

func (r memSagas) GetByID(_ context.Context, id string) (*models.SagaRun, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	run, ok := r.db.sagas[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *run
	return &cp, nil
}

func (r memSagas) UpdateProgress(_ context.Context, id string, status models.SagaStatus, step string, lastError *string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	run, ok := r.db.sagas[id]
	if !ok {
		return sql.ErrNoRows
	}
	run.Status = status
	run.Step = step
	run.LastError = lastError
	run.Attempts++
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memSagas) Restart(_ context.Context, id string) (*models.SagaRun, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	run, ok := r.db.sagas[id]
	if !ok || run.Status != models.SagaStalled {
		return nil, repository.ErrStaleWrite
	}
	run.Status = models.SagaRunning
	run.UpdatedAt = time.Now().UTC()
	cp := *run
	return &cp, nil
}

func (r memSagas) List(_ context.Context, filter models.SagaFilter) ([]models.SagaRun, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.SagaRun
	for _, run := range r.db.sagas {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if len(filter.Status) > 0 {
			matched := false
			for _, s := range filter.Status {
				matched = matched || s == run.Status
			}
			if !matched {
				continue
			}
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSagas) ListStaleRunning(_ context.Context, olderThan time.Time, limit int) ([]models.SagaRun, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.SagaRun
	for _, run := range r.db.sagas {
		if run.Status == models.SagaRunning && run.UpdatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *run)
		}
	}
	return out, nil
}

// memEvents implements eventStore, outboxReader and eventFeedStore.
type memEvents struct{ db *memDB }

func (r memEvents) GetByID(_ context.Context, id string) (*models.LifecycleEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range r.db.events {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memEvents) MarkDispatched(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.events {
		if r.db.events[i].ID == id && r.db.events[i].DispatchedAt == nil {
			stamp := at
			r.db.events[i].DispatchedAt = &stamp
		}
	}
	return nil
}

func (r memEvents) ListUndispatched(_ context.Context, olderThan time.Time, limit int) ([]models.LifecycleEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.LifecycleEvent
	for _, e := range r.db.events {
		if e.DispatchedAt == nil && e.OccurredAt.Before(olderThan) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memEvents) List(_ context.Context, filter models.EventFilter) ([]models.LifecycleEvent, error) {
	r.db.mu.Lock()
	all := append([]models.LifecycleEvent(nil), r.db.events...)
	r.db.mu.Unlock()
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].OccurredAt.Equal(all[j].OccurredAt) {
			return all[i].OccurredAt.Before(all[j].OccurredAt)
		}
		return all[i].ID < all[j].ID
	})
	var out []models.LifecycleEvent
	for _, e := range all {
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if !filter.AfterCursor.IsZero() {
			if e.OccurredAt.Before(filter.AfterCursor) ||
				(e.OccurredAt.Equal(filter.AfterCursor) && e.ID <= filter.AfterID) {
				continue
			}
		}
		out = append(out, e)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r memEvents) ListByEntity(_ context.Context, entityType models.EntityType, entityID string) ([]models.LifecycleEvent, error) {
	out := r.db.eventsFor(entityType, entityID)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// memDocuments is a content-addressed document store with injectable failures.
type memDocuments struct {
	mu         sync.Mutex
	docs       map[string][]byte
	failStores int
	alwaysFail bool
	storeCalls int
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[string][]byte)}
}

func (d *memDocuments) Store(_ context.Context, doc storage.Document) (storage.StoredDocument, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storeCalls++
	if d.alwaysFail {
		return storage.StoredDocument{}, errors.New("bucket unreachable")
	}
	if d.failStores > 0 {
		d.failStores--
		return storage.StoredDocument{}, errors.New("bucket unreachable")
	}
	checksum := storage.Checksum(doc.Data)
	path := doc.Category + "/" + strings.TrimPrefix(checksum, "blake2b:")
	d.docs[path] = append([]byte(nil), doc.Data...)
	return storage.StoredDocument{Path: path, Checksum: checksum, Size: int64(len(doc.Data))}, nil
}

func (d *memDocuments) Fetch(_ context.Context, path, checksum string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.docs[path]
	if !ok {
		return nil, storage.ErrDocumentNotFound
	}
	if err := storage.VerifyChecksum(data, checksum); err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (d *memDocuments) Delete(_ context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, path)
	return nil
}

func (d *memDocuments) count(category string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for path := range d.docs {
		if strings.HasPrefix(path, category+"/") {
			n++
		}
	}
	return n
}

func (d *memDocuments) corrupt(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[path] = []byte("tampered")
}

// recordingDispatcher captures notifications; failures makes the next calls fail.
type recordingDispatcher struct {
	mu       sync.Mutex
	sent     []models.Notification
	failures int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("notification broker down")
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) ofType(typ models.NotificationType) []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Notification
	for _, n := range d.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (d *recordingDispatcher) setFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// recordingPublisher captures committed events without handling them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event models.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []models.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LifecycleEvent(nil), p.events...)
}

// stubOffers answers capacity checks.
type stubOffers struct {
	remaining map[string]int
	err       error
	calls     int
}

func (o *stubOffers) RemainingPositions(_ context.Context, offerID string) (int, error) {
	o.calls++
	if o.err != nil {
		return 0, o.err
	}
	return o.remaining[offerID], nil
}

// memCache mimics CacheService on top of JSON blobs.
type memCache struct {
	mu     sync.Mutex
	items  map[string][]byte
	hits   int
	misses int
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		c.misses++
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fastRetrier() *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
		retry.WithJitter(0),
	)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}
