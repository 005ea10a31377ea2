package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"multitrack/core/audio"
	"multitrack/core/ledger"
	"multitrack/core/metadata"
	"multitrack/logger"
	"multitrack/model"
)

// BlobStore stores bytes and returns their content identifier.
type BlobStore interface {
	Store(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Deps are the collaborators a workflow drives. Nothing is read from
// package state.
type Deps struct {
	Store  BlobStore
	Mixer  audio.Mixer
	Ledger ledger.Ledger

	// Scheme prefixes content identifiers into locators: <scheme>://<cid>.
	Scheme  string
	Modules ledger.ModuleConfig

	Progress ProgressFunc
}

// Result describes a completed publish.
type Result struct {
	ContentLocator string           `json:"contentLocator"`
	MetadataID     string           `json:"metadataId"`
	Media          []metadata.Media `json:"media"`
	Pending        ledger.Pending   `json:"pending"`
	Remix          bool             `json:"remix"`
}

// Workflow publishes one draft for one owner (profile id). It is a linear
// state machine; Run drives it from Idle to Done, one transition function
// per stage.
//
// A failed Run leaves the draft in place and a later Run starts over from
// Idle. A successful Run discards the draft.
type Workflow struct {
	owner string
	deps  Deps

	running atomic.Bool

	mu    sync.Mutex
	stage Stage
	draft *Draft

	// per-run state
	layer   []byte
	mix     *audio.Buffer
	media   []metadata.Media
	doc     *metadata.Document
	content string
	pending ledger.Pending
}

// New creates a workflow in the Idle stage.
func New(owner string, draft *Draft, deps Deps) *Workflow {
	if deps.Scheme == "" {
		deps.Scheme = "ipfs"
	}
	return &Workflow{owner: owner, deps: deps, draft: draft}
}

// Stage is the current stage, safe to call while Run is in flight.
func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Draft returns the draft, or nil once it has been published.
func (w *Workflow) Draft() *Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Running reports whether Run is in flight.
func (w *Workflow) Running() bool {
	return w.running.Load()
}

// Run drives the draft through every stage. It returns ErrBusy if another
// Run of this workflow is in flight, and a *Error for any step failure.
// Steps are not retried.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer w.running.Store(false)

	w.reset()
	start := time.Now()

	for {
		stage := w.Stage()
		if stage == StageDone {
			break
		}
		if err := w.step(ctx, stage); err != nil {
			logger.Warn("[Publish] 发布流程中止",
				logger.String("owner", w.owner),
				logger.String("stage", err.Stage.String()),
				logger.ErrorField(err))
			return nil, err
		}
	}

	res := &Result{
		ContentLocator: w.content,
		MetadataID:     w.doc.MetadataID,
		Media:          w.media,
		Pending:        w.pending,
		Remix:          w.draft.IsRemix(),
	}

	w.mu.Lock()
	w.draft = nil
	w.mu.Unlock()

	logger.Info("[Publish] 发布流程完成",
		logger.String("owner", w.owner),
		logger.String("content", res.ContentLocator),
		logger.String("pending", res.Pending.Ref),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (w *Workflow) reset() {
	w.mu.Lock()
	w.stage = StageIdle
	w.mu.Unlock()
	w.layer, w.mix, w.media, w.doc, w.content = nil, nil, nil, nil, ""
	w.pending = ledger.Pending{}
}

// step performs the transition out of from. The stage only advances when
// the transition succeeds.
func (w *Workflow) step(ctx context.Context, from Stage) *Error {
	switch from {
	case StageIdle:
		return w.enter(ctx, StageReadingFile, "Reading file...", w.readFile)
	case StageReadingFile:
		if w.draft.IsRemix() {
			return w.enter(ctx, StageMixing, "Mixing audio...", w.mixAudio)
		}
		return w.enter(ctx, StageUploadingAudio, "Uploading track audio...", w.uploadAudio)
	case StageMixing:
		return w.enter(ctx, StageUploadingAudio, "Uploading track audio...", w.uploadAudio)
	case StageUploadingAudio:
		return w.enter(ctx, StageGeneratingMetadata, "Generating token metadata...", w.generateMetadata)
	case StageGeneratingMetadata:
		return w.enter(ctx, StageUploadingMetadata, "Uploading token metadata...", w.uploadMetadata)
	case StageUploadingMetadata:
		msg := "Creating Lens post..."
		if w.draft.IsRemix() {
			msg = "Creating Lens comment..."
		}
		return w.enter(ctx, StageAwaitingChainWrite, msg, w.writeChain)
	case StageAwaitingChainWrite:
		return w.enter(ctx, StageDone, "Published.", nil)
	}
	return fail(ErrInternal, from, fmt.Errorf("no transition out of %s", from))
}

func (w *Workflow) enter(ctx context.Context, next Stage, msg string, work func(context.Context) *Error) *Error {
	w.report(next, msg)
	if work != nil {
		if err := work(ctx); err != nil {
			return err
		}
	}
	w.mu.Lock()
	w.stage = next
	w.mu.Unlock()
	return nil
}

func (w *Workflow) report(stage Stage, msg string) {
	p := Progress{Stage: stage, Message: msg}
	w.mu.Lock()
	if w.draft != nil {
		w.draft.Progress = p
	}
	w.mu.Unlock()

	logger.Debug("[Publish] "+msg, logger.String("owner", w.owner), logger.String("stage", stage.String()))
	if w.deps.Progress != nil {
		w.deps.Progress(p)
	}
}

func (w *Workflow) locator(cid string) string {
	return w.deps.Scheme + "://" + cid
}

func (w *Workflow) readFile(context.Context) *Error {
	d := w.draft
	if d == nil {
		return fail(ErrInput, StageReadingFile, errors.New("nothing to publish"))
	}
	if d.Audio == nil || d.Audio.Open == nil {
		return fail(ErrInput, StageReadingFile, errors.New("no audio file attached"))
	}
	if d.Title == "" {
		return fail(ErrInput, StageReadingFile, errors.New("a name is required"))
	}
	d.Audio.MimeType = metadata.NormalizeAudio(d.Audio.MimeType)
	if !metadata.SupportedAudio(d.Audio.MimeType) {
		return fail(ErrInput, StageReadingFile, fmt.Errorf("unsupported audio type %q", d.Audio.MimeType))
	}
	if d.IsRemix() {
		if _, _, err := model.ParseID(d.Parent.ID); err != nil {
			return fail(ErrInput, StageReadingFile, err)
		}
	}

	rc, err := d.Audio.Open()
	if err != nil {
		return fail(ErrInput, StageReadingFile, fmt.Errorf("open %s: %w", d.Audio.Name, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fail(ErrInput, StageReadingFile, fmt.Errorf("read %s: %w", d.Audio.Name, err))
	}
	if len(data) == 0 {
		return fail(ErrInput, StageReadingFile, errors.New("audio file is empty"))
	}
	w.layer = data
	return nil
}

// The new layer goes first and the parent's accumulated mix second, the
// order playback expects.
func (w *Workflow) mixAudio(ctx context.Context) *Error {
	if w.deps.Mixer == nil {
		return fail(ErrMix, StageMixing, errors.New("no mixer configured"))
	}
	base := w.draft.Parent.MixRef()
	if base == "" {
		return fail(ErrMix, StageMixing, fmt.Errorf("publication %s has no audio", w.draft.Parent.ID))
	}

	mix, err := w.deps.Mixer.Combine(ctx,
		audio.Source{Locator: w.draft.Audio.Name, Data: w.layer, MimeType: w.draft.Audio.MimeType},
		audio.Source{Locator: base},
	)
	if err != nil {
		return fail(ErrMix, StageMixing, err)
	}
	if mix == nil || len(mix.Data) == 0 {
		return fail(ErrMix, StageMixing, errors.New("mixer returned no audio"))
	}
	if mix.MimeType == "" {
		mix.MimeType = w.draft.Audio.MimeType
	}
	w.mix = mix
	return nil
}

// uploadAudio stores the layer and then, for remixes, the mix.
func (w *Workflow) uploadAudio(ctx context.Context) *Error {
	mime := w.draft.Audio.MimeType
	cid, err := w.deps.Store.Store(ctx, w.layer, mime)
	if err != nil {
		return fail(ErrStorage, StageUploadingAudio, fmt.Errorf("upload track: %w", err))
	}
	w.media = append(w.media, metadata.Media{Item: w.locator(cid), Type: mime, AltTag: metadata.AltTagTrack})

	if w.mix == nil {
		return nil
	}
	w.report(StageUploadingAudio, "Uploading mix audio...")
	cid, err = w.deps.Store.Store(ctx, w.mix.Data, w.mix.MimeType)
	if err != nil {
		return fail(ErrStorage, StageUploadingAudio, fmt.Errorf("upload mix: %w", err))
	}
	w.media = append(w.media, metadata.Media{Item: w.locator(cid), Type: w.mix.MimeType, AltTag: metadata.AltTagMix})
	return nil
}

func (w *Workflow) generateMetadata(context.Context) *Error {
	doc, err := metadata.Build(metadata.Params{
		Name:        w.draft.Title,
		Description: w.draft.Description,
		Media:       w.media,
	})
	if err != nil {
		return fail(ErrInternal, StageGeneratingMetadata, err)
	}
	w.doc = doc
	return nil
}

func (w *Workflow) uploadMetadata(ctx context.Context) *Error {
	raw, err := w.doc.Marshal()
	if err != nil {
		return fail(ErrInternal, StageUploadingMetadata, err)
	}
	cid, err := w.deps.Store.Store(ctx, raw, metadata.MimeType)
	if err != nil {
		return fail(ErrStorage, StageUploadingMetadata, fmt.Errorf("upload metadata: %w", err))
	}
	w.content = w.locator(cid)
	return nil
}

// writeChain submits the publication. The call returns once the wallet has
// accepted it; confirmation is not awaited.
func (w *Workflow) writeChain(ctx context.Context) *Error {
	if w.deps.Ledger == nil {
		return fail(ErrChainWrite, StageAwaitingChainWrite, errors.New("no ledger configured"))
	}

	var (
		pending ledger.Pending
		err     error
	)
	if w.draft.IsRemix() {
		parentOwner, parentSeq, perr := model.ParseID(w.draft.Parent.ID)
		if perr != nil {
			return fail(ErrChainWrite, StageAwaitingChainWrite, perr)
		}
		pending, err = w.deps.Ledger.PublishComment(ctx, ledger.CommentRequest{
			ProfileID:        w.owner,
			ContentURI:       w.content,
			ProfileIDPointed: parentOwner,
			PubIDPointed:     parentSeq,
			Modules:          w.deps.Modules,
		})
	} else {
		pending, err = w.deps.Ledger.Publish(ctx, ledger.PostRequest{
			ProfileID:  w.owner,
			ContentURI: w.content,
			Modules:    w.deps.Modules,
		})
	}
	if err != nil {
		return fail(ErrChainWrite, StageAwaitingChainWrite, err)
	}
	w.pending = pending
	return nil
}
