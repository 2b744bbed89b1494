package pipeline

import (
	"strings"

	libfastimport "github.com/rcowham/go-libgitfastimport"

	"github.com/rcowham/gitfilterrs/record"
)

// TagPipeline implements C7 (spec.md §4.7): annotated tags are buffered
// keyed by their final (post-rename) ref, last-wins on dedup; lightweight
// tags (reset records under refs/tags/) are buffered the same way. Both
// maps flush immediately before the stream's terminal `done` marker, with
// an annotated tag winning over a same-named lightweight tag.
type TagPipeline struct {
	ctx         *Context
	annotated   map[string]*record.Tag
	lightweight map[string]*record.Reset
	order       []string // first-seen order of final refs, for deterministic flush
}

// NewTagPipeline returns an empty pipeline bound to ctx's rename tables
// and stats.
func NewTagPipeline(ctx *Context) *TagPipeline {
	return &TagPipeline{
		ctx:         ctx,
		annotated:   make(map[string]*record.Tag),
		lightweight: make(map[string]*record.Reset),
	}
}

func (p *TagPipeline) noteOrder(ref string) {
	for _, r := range p.order {
		if r == ref {
			return
		}
	}
	p.order = append(p.order, ref)
}

// HandleReset processes one reset record. If its ref as it arrived falls
// under refs/tags/, it is a lightweight tag and is buffered under its
// tag-renamed ref,
// reporting handled=true so the caller does not emit it inline. Branch
// resets (HEAD positioning) are not buffered: the caller renames via
// ctx.BranchRename and emits immediately.
func (p *TagPipeline) HandleReset(reset *record.Reset) (handled bool) {
	if !strings.HasPrefix(reset.Ref, "refs/tags/") {
		return false
	}
	finalRef := p.ctx.TagRename.ApplyOrSame(reset.Ref)
	if _, existed := p.lightweight[finalRef]; existed {
		p.ctx.Stats.TagsDeduped++
	}
	p.lightweight[finalRef] = &record.Reset{Ref: finalRef, From: reset.From}
	p.noteOrder(finalRef)
	return true
}

// HandleTag buffers an annotated tag keyed by its final (post-rename)
// ref. A later arrival with the same final ref replaces the earlier one.
func (p *TagPipeline) HandleTag(tag *record.Tag) {
	finalRef := p.ctx.TagRename.ApplyOrSame(tag.Ref)
	tag.Ref = finalRef
	// Annotated tag objects carry no mark of their own in the stream (only
	// commits do), so a short hash referencing one can't be resolved via
	// the mark table post-import; tag original-oids are deliberately not
	// indexed into ctx.Hex. Short-hash rewriting therefore only resolves
	// references to commits, even inside a tag's own message.
	tag.Message = p.ctx.RewriteMessage(tag.Message)
	if _, existed := p.annotated[finalRef]; existed {
		p.ctx.Stats.TagsDeduped++
	}
	p.annotated[finalRef] = tag
	p.noteOrder(finalRef)
}

// Flush emits every buffered tag (annotated winning over lightweight for
// the same final ref) to backend, in first-seen order. Call this
// immediately before forwarding the stream's terminal `done` record.
func (p *TagPipeline) Flush(backend *libfastimport.Backend) error {
	for _, ref := range p.order {
		if tag, ok := p.annotated[ref]; ok {
			if err := tag.Emit(backend); err != nil {
				return err
			}
			continue
		}
		if reset, ok := p.lightweight[ref]; ok {
			if err := reset.Emit(backend); err != nil {
				return err
			}
		}
	}
	return nil
}

// StageRefs rewrites every buffered tag/reset's Ref field through stage
// (the orchestrator's staging-namespace mapper) in place, without
// changing the map keys the pipeline itself still indexes by final ref.
// Call this once, after the stream's last tag/reset has been buffered
// and immediately before Flush, so Flush emits into the staging
// namespace like every other ref the importer writes.
func (p *TagPipeline) StageRefs(stage func(string) string) {
	for _, tag := range p.annotated {
		tag.Ref = stage(tag.Ref)
	}
	for _, reset := range p.lightweight {
		reset.Ref = stage(reset.Ref)
	}
}

// FinalRefs returns every final ref this pipeline produced, in first-seen
// order.
func (p *TagPipeline) FinalRefs() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// TagFor returns the buffered annotated tag for ref, if any.
func (p *TagPipeline) TagFor(ref string) (*record.Tag, bool) {
	t, ok := p.annotated[ref]
	return t, ok
}

// ResetFor returns the buffered lightweight reset for ref, if any.
func (p *TagPipeline) ResetFor(ref string) (*record.Reset, bool) {
	r, ok := p.lightweight[ref]
	return r, ok
}
