// Package folder maintains the per-case folder tree.
package folder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kiabasekou/ged-project/internal/audit"
	"github.com/kiabasekou/ged-project/internal/model"
	"github.com/kiabasekou/ged-project/internal/repository"
)

// MaxNameLength bounds folder names, in characters.
const MaxNameLength = 150

// CaseDirectory answers whether a case exists. Cases live outside this
// system.
type CaseDirectory interface {
	CaseExists(ctx context.Context, caseID string) (bool, error)
}

// CaseDirectoryFunc adapts a function to CaseDirectory.
type CaseDirectoryFunc func(ctx context.Context, caseID string) (bool, error)

func (f CaseDirectoryFunc) CaseExists(ctx context.Context, caseID string) (bool, error) {
	return f(ctx, caseID)
}

// AnyCase accepts every non-empty case id.
var AnyCase CaseDirectory = CaseDirectoryFunc(func(_ context.Context, caseID string) (bool, error) {
	return strings.TrimSpace(caseID) != "", nil
})

// Node is one folder of a rendered tree.
type Node struct {
	Folder    *model.Folder `json:"folder" yaml:"folder"`
	Documents int           `json:"documents" yaml:"documents"`
	Children  []*Node       `json:"children,omitempty" yaml:"children,omitempty"`
}

// Service creates and navigates folders.
type Service struct {
	repo   repository.FolderRepository
	cases  CaseDirectory
	notify *audit.Notifier
	log    zerolog.Logger
	now    func() time.Time
}

// NewService wires the folder service. A nil cases directory means AnyCase.
func NewService(repo repository.FolderRepository, cases CaseDirectory, notify *audit.Notifier, log zerolog.Logger) *Service {
	if cases == nil {
		cases = AnyCase
	}
	return &Service{repo: repo, cases: cases, notify: notify, log: log, now: time.Now}
}

// ValidateName checks a folder name.
func ValidateName(name string) error {
	err := validation.Validate(name,
		validation.Required.Error("folder name is required"),
		validation.RuneLength(1, MaxNameLength).Error(fmt.Sprintf("folder name must be at most %d characters", MaxNameLength)),
		validation.By(func(any) error {
			if strings.Contains(name, "/") {
				return errors.New("folder name must not contain '/'")
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return nil
}

// Create adds a folder under parentID, or a root folder when parentID is nil.
// Nesting is limited to model.MaxFolderDepth levels.
func (s *Service) Create(ctx context.Context, actor, caseID, name string, parentID *string) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.requireCase(ctx, caseID); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := s.repo.GetFolder(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("get parent folder: %w", err)
		}
		if parent.CaseID != caseID {
			return nil, fmt.Errorf("%w: parent folder belongs to another case", model.ErrValidation)
		}
	}
	f := &model.Folder{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		ParentID:  parentID,
		Name:      name,
		CreatedBy: actor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.InsertFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	s.log.Info().Str("folder_id", f.ID).Str("case_id", caseID).Msg("folder created")
	s.notify.Notify(ctx, actor, audit.Subject{Type: audit.SubjectFolder, ID: f.ID}, audit.ActionCreate,
		fmt.Sprintf("created folder %q", name), map[string]any{"case_id": caseID, "parent_id": derefOr(parentID, "")})
	return f, nil
}

// Get returns one folder.
func (s *Service) Get(ctx context.Context, id string) (*model.Folder, error) {
	return s.repo.GetFolder(ctx, id)
}

// Path returns the folder names from the root down to id.
func (s *Service) Path(ctx context.Context, id string) ([]string, error) {
	var names []string
	next := &id
	for depth := 0; next != nil; depth++ {
		if depth >= model.MaxFolderDepth {
			return nil, fmt.Errorf("folder path of %s: %w", id, model.ErrFolderCycle)
		}
		f, err := s.repo.GetFolder(ctx, *next)
		if err != nil {
			return nil, fmt.Errorf("folder path of %s: %w", id, err)
		}
		names = append(names, f.Name)
		next = f.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// ListChildren returns the direct subfolders of id ordered by name.
func (s *Service) ListChildren(ctx context.Context, id string) ([]*model.Folder, error) {
	if _, err := s.repo.GetFolder(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListChildFolders(ctx, id)
}

// Roots returns the top-level folders of a case.
func (s *Service) Roots(ctx context.Context, caseID string) ([]*model.Folder, error) {
	return s.repo.ListRootFolders(ctx, caseID)
}

// Move re-parents a folder. A nil parent makes it a root. The repository
// rejects moves that would put a folder below itself or push its subtree
// past model.MaxFolderDepth.
func (s *Service) Move(ctx context.Context, actor, id string, parentID *string) (*model.Folder, error) {
	f, err := s.repo.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		if *parentID == id {
			return nil, model.ErrFolderCycle
		}
		parent, err := s.repo.GetFolder(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("get parent folder: %w", err)
		}
		if parent.CaseID != f.CaseID {
			return nil, fmt.Errorf("%w: parent folder belongs to another case", model.ErrValidation)
		}
	}
	if err := s.repo.MoveFolder(ctx, id, parentID); err != nil {
		return nil, fmt.Errorf("move folder: %w", err)
	}
	from := derefOr(f.ParentID, "")
	f.ParentID = parentID
	s.notify.Notify(ctx, actor, audit.Subject{Type: audit.SubjectFolder, ID: id}, audit.ActionUpdate,
		fmt.Sprintf("moved folder %q", f.Name), map[string]any{"from_parent_id": from, "to_parent_id": derefOr(parentID, "")})
	return f, nil
}

// Tree loads the subtree rooted at id with current-document counts.
func (s *Service) Tree(ctx context.Context, id string) (*Node, error) {
	f, err := s.repo.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.tree(ctx, f, 0)
}

func (s *Service) tree(ctx context.Context, f *model.Folder, depth int) (*Node, error) {
	if depth >= model.MaxFolderDepth {
		return nil, fmt.Errorf("folder tree below %s: %w", f.ID, model.ErrFolderCycle)
	}
	count, err := s.repo.CountCurrentDocuments(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	node := &Node{Folder: f, Documents: count}
	children, err := s.repo.ListChildFolders(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		sub, err := s.tree(ctx, child, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

// BelongsToCase reports whether folderID exists and is part of caseID.
func (s *Service) BelongsToCase(ctx context.Context, folderID, caseID string) (bool, error) {
	f, err := s.repo.GetFolder(ctx, folderID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.CaseID == caseID, nil
}

// CaseExists consults the configured case directory.
func (s *Service) CaseExists(ctx context.Context, caseID string) (bool, error) {
	return s.cases.CaseExists(ctx, caseID)
}

func (s *Service) requireCase(ctx context.Context, caseID string) error {
	ok, err := s.cases.CaseExists(ctx, caseID)
	if err != nil {
		return fmt.Errorf("look up case: %w", err)
	}
	if !ok {
		return fmt.Errorf("case %q: %w", caseID, model.ErrNotFound)
	}
	return nil
}

// RenderTree writes node as an indented text tree.
func RenderTree(w io.Writer, node *Node) error {
	if _, err := fmt.Fprintf(w, "%s (%d)\n", node.Folder.Name, node.Documents); err != nil {
		return err
	}
	return renderChildren(w, node.Children, "")
}

func renderChildren(w io.Writer, children []*Node, prefix string) error {
	for i, child := range children {
		branch, indent := "├── ", "│   "
		if i == len(children)-1 {
			branch, indent = "└── ", "    "
		}
		if _, err := fmt.Fprintf(w, "%s%s%s (%d)\n", prefix, branch, child.Folder.Name, child.Documents); err != nil {
			return err
		}
		if err := renderChildren(w, child.Children, prefix+indent); err != nil {
			return err
		}
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
