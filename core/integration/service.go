package integration

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/knowledge"
	"github.com/oiclass/oiclass/core/notification"
	"github.com/oiclass/oiclass/core/progress"
	"github.com/oiclass/oiclass/core/user"
)

var (
	ErrNoLuoguUID     = errors.New("the student has no Luogu uid")
	ErrNotAStudent    = errors.New("this user is not a student")
	ErrCandidateTaken = errors.New("this candidate id belongs to another student")
	ErrSyncDenied     = core.NewPermissionError("only the student or staff can sync this account")
	ErrImportDenied   = core.NewPermissionError("only teachers and admins can import problems")
)

const luoguProblemURL = "https://www.luogu.com.cn/problem/"

type (
	// Luogu fetches data from luogu.com.cn.
	Luogu interface {
		Problem(ctx context.Context, pid string) (LuoguProblem, error)
		User(ctx context.Context, uid string) (LuoguUser, error)
	}

	// Gesp fetches the exam results of a GESP candidate.
	Gesp interface {
		Records(ctx context.Context, candidateID string) ([]GespExam, error)
	}

	Repository interface {
		// UpsertGespRecords inserts the records or updates them on (candidate, level, language, exam date).
		// Rows held by another student are left untouched.
		UpsertGespRecords(ctx context.Context, records []GespRecord, exec ...core.DBExecutor) error
		// CandidateOwner returns the student holding records of the candidate, "" when none.
		CandidateOwner(ctx context.Context, candidateID string, exec ...core.DBExecutor) (string, error)
		QueryGespRecords(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]GespRecord, error)
	}

	Visibility interface {
		CanView(ctx context.Context, viewer user.User, studentID string) (bool, error)
	}

	Service interface {
		ImportLuoguProblem(ctx context.Context, actor user.User, ip ImportProblem) (p knowledge.Problem, created bool, err error)
		SyncLuogu(ctx context.Context, actor user.User, studentID string) (progress.SyncResult, error)
		SyncGesp(ctx context.Context, actor user.User, studentID string, sg SyncGesp) ([]GespRecord, error)
		GespRecords(ctx context.Context, viewer user.User, studentID string) ([]GespRecord, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		luogu     Luogu
		gesp      Gesp
		usrSvc    user.Service
		knowledge knowledge.Service
		progress  progress.Service
		vis       Visibility
		notifier  notification.Notifier
		validate  *validator.Validate
		logger    core.Logger
	}

	// Deps groups what the integration service is built from.
	Deps struct {
		DB        core.DB
		Repo      Repository
		Luogu     Luogu
		Gesp      Gesp
		Users     user.Service
		Knowledge knowledge.Service
		Progress  progress.Service
		Vis       Visibility
		Notifier  notification.Notifier
		Validate  *validator.Validate
		Logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(deps Deps) Service {
	return &service{
		db:        deps.DB,
		repo:      deps.Repo,
		luogu:     deps.Luogu,
		gesp:      deps.Gesp,
		usrSvc:    deps.Users,
		knowledge: deps.Knowledge,
		progress:  deps.Progress,
		vis:       deps.Vis,
		notifier:  deps.Notifier,
		validate:  deps.Validate,
		logger:    deps.Logger,
	}
}

func (svc *service) ImportLuoguProblem(ctx context.Context, actor user.User, ip ImportProblem) (knowledge.Problem, bool, error) {
	if !actor.IsStaff() {
		return knowledge.Problem{}, false, ErrImportDenied
	}
	ip.Clean()
	if err := svc.validate.Struct(ip); err != nil {
		return knowledge.Problem{}, false, err
	}
	pid := knowledge.NormalizeSourceID(knowledge.SourceLuogu, ip.PID)

	lp, err := svc.luogu.Problem(ctx, pid)
	if err != nil {
		return knowledge.Problem{}, false, errors.Wrapf(err, "fetching luogu problem %s", pid)
	}
	if lp.PID == "" {
		lp.PID = pid
	}
	if lp.URL == "" {
		lp.URL = luoguProblemURL + knowledge.NormalizeSourceID(knowledge.SourceLuogu, lp.PID)
	}
	return svc.knowledge.UpsertSourceProblem(ctx, ip.KnowledgePointID, knowledge.NewProblem{
		Title:      lp.Title,
		Source:     knowledge.SourceLuogu,
		SourceID:   lp.PID,
		URL:        lp.URL,
		Difficulty: lp.Difficulty.String(),
	})
}

// student loads the student an actor wants to sync; students may only sync themselves.
func (svc *service) student(ctx context.Context, actor user.User, studentID string) (user.User, error) {
	if studentID == "" {
		studentID = actor.ID
	}
	if studentID != actor.ID && !actor.IsStaff() {
		return user.User{}, ErrSyncDenied
	}
	student, err := svc.usrSvc.GetByID(ctx, studentID)
	if err != nil {
		return user.User{}, err
	}
	if !student.IsStudent() {
		return user.User{}, core.NewValidationError(ErrNotAStudent)
	}
	return student, nil
}

func (svc *service) SyncLuogu(ctx context.Context, actor user.User, studentID string) (progress.SyncResult, error) {
	student, err := svc.student(ctx, actor, studentID)
	if err != nil {
		return progress.SyncResult{}, err
	}
	if student.LuoguUID == "" {
		return progress.SyncResult{}, core.NewValidationError(ErrNoLuoguUID, core.FieldError{Field: "luogu_uid", Error: ErrNoLuoguUID.Error()})
	}

	lu, err := svc.luogu.User(ctx, student.LuoguUID)
	if err != nil {
		return progress.SyncResult{}, errors.Wrapf(err, "fetching luogu user %s", student.LuoguUID)
	}
	res, err := svc.progress.MarkSolvedBySource(ctx, student.ID, knowledge.SourceLuogu, lu.Passed)
	if err != nil {
		return progress.SyncResult{}, err
	}
	svc.logger.Info("luogu progress synced", "student_id", student.ID, "matched", res.Matched, "updated", res.Updated)

	if res.Updated > 0 {
		_, err := svc.notifier.Notify(ctx, []string{student.ID}, notification.NewNotification{
			Kind:  notification.KindProgressSynced,
			Title: "Luogu sync marked " + strconv.Itoa(res.Updated) + " problems as solved",
			Link:  "/progress",
		})
		if err != nil {
			svc.logger.Error("notifying luogu sync", err, "student_id", student.ID)
		}
	}
	return res, nil
}

func (svc *service) SyncGesp(ctx context.Context, actor user.User, studentID string, sg SyncGesp) ([]GespRecord, error) {
	sg.Clean()
	if err := svc.validate.Struct(sg); err != nil {
		return nil, err
	}
	student, err := svc.student(ctx, actor, studentID)
	if err != nil {
		return nil, err
	}

	if err := svc.checkCandidate(ctx, student.ID, sg.CandidateID); err != nil {
		return nil, err
	}

	exams, err := svc.gesp.Records(ctx, sg.CandidateID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching gesp records of %s", sg.CandidateID)
	}
	now := core.Now()
	records := make([]GespRecord, 0, len(exams))
	seen := make(map[string]bool, len(exams))
	for _, e := range exams {
		r := GespRecord{
			ID:          uuid.New().String(),
			StudentID:   student.ID,
			CandidateID: sg.CandidateID,
			Level:       e.Level,
			Language:    strings.ToLower(core.CleanString(e.Language)),
			Score:       e.Score,
			Passed:      e.Passed,
			ExamDate:    core.CleanString(e.ExamDate),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// one row per exam sitting
		key := strconv.Itoa(r.Level) + "|" + r.Language + "|" + r.ExamDate
		if !seen[key] {
			seen[key] = true
			records = append(records, r)
		}
	}
	if len(records) > 0 {
		err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
			if err := svc.checkCandidate(ctx, student.ID, sg.CandidateID, tx); err != nil {
				return err
			}
			return svc.repo.UpsertGespRecords(ctx, records, tx)
		})
		if err != nil {
			if _, ok := err.(*core.ValidationError); ok {
				return nil, err
			}
			return nil, errors.Wrap(err, "saving gesp records")
		}
	}
	return svc.repo.QueryGespRecords(ctx, student.ID)
}

func (svc *service) GespRecords(ctx context.Context, viewer user.User, studentID string) ([]GespRecord, error) {
	ok, err := svc.vis.CanView(ctx, viewer, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "checking visibility")
	}
	if !ok {
		return nil, user.ErrNotFound
	}
	return svc.repo.QueryGespRecords(ctx, studentID)
}

// checkCandidate fails when the candidate's records belong to another student.
func (svc *service) checkCandidate(ctx context.Context, studentID, candidateID string, exec ...core.DBExecutor) error {
	owner, err := svc.repo.CandidateOwner(ctx, candidateID, exec...)
	if err != nil {
		return err
	}
	if owner != "" && owner != studentID {
		return core.NewValidationError(ErrCandidateTaken, core.FieldError{Field: "candidate_id", Error: ErrCandidateTaken.Error()})
	}
	return nil
}
