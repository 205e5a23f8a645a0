package scanner

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/variants"
)

const defaultOwner = "anonymous"

// ErrNoSeeds is returned when a submission contains no usable seed domain.
var ErrNoSeeds = errString("no valid seed domains")

type errString string

func (e errString) Error() string { return string(e) }

// Service turns seed submissions into a job and its pending candidate tasks.
type Service struct {
	tasks ports.TaskStore
	scans ports.ScanRepository
	gen   *variants.Generator
	log   *logrus.Entry
}

func New(tasks ports.TaskStore, scans ports.ScanRepository, gen *variants.Generator, log *logrus.Entry) *Service {
	return &Service{tasks: tasks, scans: scans, gen: gen, log: log.WithField("component", "scanner")}
}

// SplitSeeds breaks free-form input on newlines, commas and whitespace,
// normalizes each entry and drops duplicates and entries without a TLD.
// Invalid entries are returned separately.
func SplitSeeds(raw []string) (seeds, rejected []string) {
	seen := make(map[string]bool)
	for _, chunk := range raw {
		for _, field := range strings.FieldsFunc(chunk, func(r rune) bool {
			return r == ',' || r == ';' || r == '\n' || r == '\r' || r == ' ' || r == '\t'
		}) {
			d := variants.Normalize(field)
			if d == "" {
				continue
			}
			if _, _, ok := variants.Split(d); !ok {
				rejected = append(rejected, field)
				continue
			}
			if !seen[d] {
				seen[d] = true
				seeds = append(seeds, d)
			}
		}
	}
	return seeds, rejected
}

// Submit creates a job for the given seeds and enqueues one task per
// generated candidate. A candidate produced by more than one seed is scanned
// once, against the first seed that produced it.
func (s *Service) Submit(ctx context.Context, owner string, raw []string) (domain.ScanJob, error) {
	seeds, rejected := SplitSeeds(raw)
	if len(rejected) > 0 {
		s.log.WithField("rejected", rejected).Info("ignoring invalid seed entries")
	}
	if len(seeds) == 0 {
		return domain.ScanJob{}, ErrNoSeeds
	}
	if owner = strings.TrimSpace(owner); owner == "" {
		owner = defaultOwner
	}

	isSeed := make(map[string]bool, len(seeds))
	for _, sd := range seeds {
		isSeed[sd] = true
	}
	queued := make(map[string]bool)
	var tasks []domain.NewTask
	for _, sd := range seeds {
		for _, c := range s.gen.Generate(sd) {
			if isSeed[c] || queued[c] {
				continue
			}
			queued[c] = true
			tasks = append(tasks, domain.NewTask{SeedDomain: sd, CandidateDomain: c})
		}
	}

	jobID, err := s.tasks.CreateJob(ctx, owner, seeds)
	if err != nil {
		return domain.ScanJob{}, fmt.Errorf("create job: %w", err)
	}
	n, err := s.tasks.CreateTasks(ctx, jobID, tasks)
	if err != nil {
		return domain.ScanJob{}, fmt.Errorf("create tasks for job %d: %w", jobID, err)
	}
	s.log.WithFields(logrus.Fields{"job_id": jobID, "seeds": len(seeds), "tasks": n}).Info("scan job queued")

	job, err := s.scans.GetJob(ctx, jobID)
	if err != nil {
		return domain.ScanJob{}, err
	}
	return job, nil
}

func (s *Service) Job(ctx context.Context, jobID int64) (domain.ScanJob, ports.JobProgress, error) {
	job, err := s.scans.GetJob(ctx, jobID)
	if err != nil {
		return job, ports.JobProgress{}, err
	}
	progress, err := s.scans.Progress(ctx, jobID)
	return job, progress, err
}

func (s *Service) Tasks(ctx context.Context, jobID int64) ([]domain.CandidateTask, error) {
	if _, err := s.scans.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.scans.ListTasks(ctx, jobID)
}

func (s *Service) Findings(ctx context.Context, jobID int64) ([]domain.RiskFinding, error) {
	if _, err := s.scans.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.scans.ListFindings(ctx, jobID)
}
