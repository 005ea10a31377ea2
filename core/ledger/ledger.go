package ledger

import (
	"context"
	"errors"
)

// ModuleConfig selects the collect and reference modules attached to a
// publication.
type ModuleConfig struct {
	CollectModule           string
	CollectModuleInitData   []byte
	ReferenceModule         string
	ReferenceModuleInitData []byte
}

// PostRequest publishes new content for a profile.
type PostRequest struct {
	ProfileID  string
	ContentURI string
	Modules    ModuleConfig
}

// CommentRequest publishes content that references an existing publication.
type CommentRequest struct {
	ProfileID           string
	ContentURI          string
	ProfileIDPointed    string
	PubIDPointed        string
	ReferenceModuleData []byte
	Modules             ModuleConfig
}

// CollectRequest collects an existing publication. CollectorID is the
// profile doing the collecting; the wallet ledger signs with the wallet
// address instead.
type CollectRequest struct {
	CollectorID string
	ProfileID   string
	PubID       string
	Data        []byte
}

// Pending identifies a submitted write. Confirmation is not awaited.
type Pending struct {
	Ref string `json:"ref"`
}

// Ledger is the write side of the social graph.
type Ledger interface {
	Publish(ctx context.Context, req PostRequest) (Pending, error)
	PublishComment(ctx context.Context, req CommentRequest) (Pending, error)
	Collect(ctx context.Context, req CollectRequest) (Pending, error)
}

var ErrUnresolvedContract = errors.New("ledger: contract address not configured")

// ZeroAddress is used for modules that are not set.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// FreeCollect is the module configuration the app publishes with: the free
// collect module initialised with followerOnly=true and no reference module.
func FreeCollect(freeCollectModule string) ModuleConfig {
	return ModuleConfig{
		CollectModule:         freeCollectModule,
		CollectModuleInitData: EncodeBool(true),
		ReferenceModule:       ZeroAddress,
	}
}
