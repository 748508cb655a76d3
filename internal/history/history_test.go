package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

const outlyerTemplate = `class Outlyer < Formula
  desc "Outlyer CLI allows to easily manage your Outlyer account via command line."
  homepage "https://www.outlyer.com/"
  url "https://github.com/outlyerapp/outlyer-cli/releases/download/VERSION/outlyer_VERSION_Darwin_x86_64.tar.gz"
  version "VERSION"
  sha256 "SUM"

  def install
    bin.install "outlyer"
  end
end
`

const (
	sumA = "519bd7271c53c05abb86cb21058c29890ca7cde495df0eb8c830473a17121fd3"
	sumB = "4bbb0307d3a96144fa3e0572d98de3aafb382c6bb407be20cee91d3652a6a803"
)

func outlyer(version, sum string) string {
	return strings.NewReplacer("VERSION", version, "SUM", sum).Replace(outlyerTemplate)
}

type testRepo struct {
	t    *testing.T
	root string
	repo *git.Repository
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tap.FormulaDir), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return &testRepo{
		t:    t,
		root: root,
		repo: repo,
		when: time.Date(2019, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// commit writes files (name -> content, "" deletes) and commits them one
// hour after the previous commit.
func (r *testRepo) commit(msg string, files map[string]string) {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	if err != nil {
		r.t.Fatalf("Worktree: %v", err)
	}
	for name, content := range files {
		rel := filepath.ToSlash(filepath.Join(tap.FormulaDir, name))
		path := filepath.Join(r.root, rel)
		if content == "" {
			if _, err := wt.Remove(rel); err != nil {
				r.t.Fatalf("Remove %s: %v", rel, err)
			}
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			r.t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(rel); err != nil {
			r.t.Fatalf("Add %s: %v", rel, err)
		}
	}
	r.when = r.when.Add(time.Hour)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Tap Maintainer", Email: "tap@example.com", When: r.when},
	})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
}

func (r *testRepo) open() *Repo {
	r.t.Helper()
	repo, err := Open(r.root, zerolog.Nop())
	if err != nil {
		r.t.Fatalf("Open() error = %v", err)
	}
	return repo
}

func versions(ds []*formula.Descriptor) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.Version)
	}
	return out
}

func TestOpenNotRepository(t *testing.T) {
	_, err := Open(t.TempDir(), zerolog.Nop())
	if !errors.Is(err, ErrNotRepository) {
		t.Errorf("Open() error = %v, want ErrNotRepository", err)
	}
}

func TestOpenFromSubdirectory(t *testing.T) {
	r := newTestRepo(t)
	r.commit("add outlyer", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})

	repo, err := Open(filepath.Join(r.root, tap.FormulaDir), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rel, err := repo.RelPath(filepath.Join(r.root, tap.FormulaDir, "outlyer.rb"))
	if err != nil {
		t.Fatalf("RelPath() error = %v", err)
	}
	if rel != "Formula/outlyer.rb" {
		t.Errorf("RelPath() = %s, want Formula/outlyer.rb", rel)
	}
}

func TestRevisions(t *testing.T) {
	r := newTestRepo(t)
	r.commit("outlyer 0.1.0", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})
	r.commit("reword desc", map[string]string{
		"outlyer.rb": strings.Replace(outlyer("0.1.0", sumA), "allows to easily", "lets you", 1),
	})
	r.commit("outlyer 0.2.0", map[string]string{"outlyer.rb": outlyer("0.2.0", sumB)})

	revs, err := r.open().Revisions(context.Background(), "Formula/outlyer.rb")
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("expected 2 revisions after collapsing, got %d", len(revs))
	}
	if revs[0].Descriptor.Version != "0.1.0" || revs[1].Descriptor.Version != "0.2.0" {
		t.Errorf("revisions out of order: %s, %s", revs[0].Descriptor.Version, revs[1].Descriptor.Version)
	}
	if !revs[0].When.Before(revs[1].When) {
		t.Error("expected oldest revision first")
	}
	if revs[0].Descriptor.Name != "outlyer" {
		t.Errorf("Name = %s, want outlyer", revs[0].Descriptor.Name)
	}
	// The earliest commit of an unchanged release is the one kept.
	if !strings.Contains(revs[0].Descriptor.Description, "allows to easily") {
		t.Errorf("expected first revision of 0.1.0 to be kept, got desc %q", revs[0].Descriptor.Description)
	}
}

func TestRevisionsSkipsUnparseable(t *testing.T) {
	r := newTestRepo(t)
	r.commit("broken", map[string]string{"outlyer.rb": "class Outlyer < Formula\n"})
	r.commit("fixed", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})

	revs, err := r.open().Revisions(context.Background(), "Formula/outlyer.rb")
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 1 {
		t.Errorf("expected 1 revision, got %d", len(revs))
	}
}

func TestRevisionsEmptyRepository(t *testing.T) {
	r := newTestRepo(t)
	revs, err := r.open().Revisions(context.Background(), "Formula/outlyer.rb")
	if err != nil {
		t.Fatalf("Revisions() error = %v", err)
	}
	if len(revs) != 0 {
		t.Errorf("expected no revisions, got %d", len(revs))
	}
}

func TestPublicationOrder(t *testing.T) {
	r := newTestRepo(t)
	r.commit("outlyer 0.1.0", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})
	r.commit("outlyer 0.2.0, keep 0.1.0", map[string]string{
		"outlyer.rb": outlyer("0.2.0", sumB),
		"outlyer@0.1.0.rb": strings.Replace(
			outlyer("0.1.0", sumA), "class Outlyer <", "class OutlyerAT010 <", 1),
	})

	tp, err := tap.Load(r.root)
	if err != nil {
		t.Fatalf("tap.Load() error = %v", err)
	}

	order, err := r.open().PublicationOrder(context.Background(), tp)
	if err != nil {
		t.Fatalf("PublicationOrder() error = %v", err)
	}
	got := versions(order["outlyer"])
	if strings.Join(got, ",") != "0.1.0,0.2.0" {
		t.Errorf("publication order = %v, want [0.1.0 0.2.0]", got)
	}
}

func TestPublicationOrderSeesRegression(t *testing.T) {
	r := newTestRepo(t)
	r.commit("outlyer 0.2.0", map[string]string{"outlyer.rb": outlyer("0.2.0", sumB)})
	r.commit("outlyer 0.1.0", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})

	tp, err := tap.Load(r.root)
	if err != nil {
		t.Fatalf("tap.Load() error = %v", err)
	}
	order, err := r.open().PublicationOrder(context.Background(), tp)
	if err != nil {
		t.Fatalf("PublicationOrder() error = %v", err)
	}
	got := versions(order["outlyer"])
	if strings.Join(got, ",") != "0.2.0,0.1.0" {
		t.Errorf("publication order = %v, want [0.2.0 0.1.0]", got)
	}
}

func TestPublicationOrderSeesRevert(t *testing.T) {
	keptAT010 := strings.Replace(outlyer("0.1.0", sumA), "class Outlyer <", "class OutlyerAT010 <", 1)

	tests := []struct {
		name    string
		commits []map[string]string
		want    string
	}{
		{
			name: "revert in place",
			commits: []map[string]string{
				{"outlyer.rb": outlyer("0.1.0", sumA)},
				{"outlyer.rb": outlyer("0.2.0", sumB)},
				{"outlyer.rb": outlyer("0.1.0", sumA)},
			},
			want: "0.1.0,0.2.0,0.1.0",
		},
		{
			name: "revert with a kept copy",
			commits: []map[string]string{
				{"outlyer.rb": outlyer("0.1.0", sumA)},
				{"outlyer.rb": outlyer("0.2.0", sumB), "outlyer@0.1.0.rb": keptAT010},
				{"outlyer.rb": outlyer("0.1.0", sumA)},
			},
			want: "0.1.0,0.2.0,0.1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRepo(t)
			for i, files := range tt.commits {
				r.commit(fmt.Sprintf("change %d", i+1), files)
			}

			tp, err := tap.Load(r.root)
			if err != nil {
				t.Fatalf("tap.Load() error = %v", err)
			}
			order, err := r.open().PublicationOrder(context.Background(), tp)
			if err != nil {
				t.Fatalf("PublicationOrder() error = %v", err)
			}
			if got := strings.Join(versions(order["outlyer"]), ","); got != tt.want {
				t.Errorf("publication order = %s, want %s", got, tt.want)
			}

			report := lint.New(zerolog.Nop()).Run(tp.Descriptors, order)
			found := false
			for _, is := range report.Errors() {
				if is.Rule == lint.RuleVersionMonotonic && is.Version == "0.1.0" {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a %s error for the downgrade, got %v", lint.RuleVersionMonotonic, report.Issues)
			}
		})
	}
}

func TestPublicationOrderUncommitted(t *testing.T) {
	r := newTestRepo(t)
	r.commit("outlyer 0.1.0", map[string]string{"outlyer.rb": outlyer("0.1.0", sumA)})
	if err := os.WriteFile(filepath.Join(r.root, tap.FormulaDir, "outlyer.rb"), []byte(outlyer("0.2.0", sumB)), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tp, err := tap.Load(r.root)
	if err != nil {
		t.Fatalf("tap.Load() error = %v", err)
	}
	order, err := r.open().PublicationOrder(context.Background(), tp)
	if err != nil {
		t.Fatalf("PublicationOrder() error = %v", err)
	}
	got := versions(order["outlyer"])
	if strings.Join(got, ",") != "0.1.0,0.2.0" {
		t.Errorf("publication order = %v, want [0.1.0 0.2.0]", got)
	}
}
