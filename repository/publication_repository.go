package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"multitrack/core/index"
	"multitrack/core/ledger"
	"multitrack/core/metadata"
	"multitrack/logger"
	"multitrack/model"
	"multitrack/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPublicationNotFound is returned when a comment or collect points at a
// publication the ledger does not hold.
var ErrPublicationNotFound = errors.New("publication not found")

// Fetcher reads stored content by id.
type Fetcher interface {
	Fetch(ctx context.Context, cid string) (*storage.Blob, error)
}

// PublicationRepository is a database-backed ledger and index for running
// without a chain. Profile ids and wallet addresses are the same thing here.
type PublicationRepository struct {
	db       *gorm.DB
	blobs    Fetcher
	resolver storage.Resolver
}

var (
	_ ledger.Ledger = (*PublicationRepository)(nil)
	_ index.Index   = (*PublicationRepository)(nil)
)

// NewPublicationRepository creates the repository. blobs is used to read the
// metadata document behind each published content URI.
func NewPublicationRepository(db *gorm.DB, blobs Fetcher, resolver storage.Resolver) *PublicationRepository {
	return &PublicationRepository{db: db, blobs: blobs, resolver: resolver}
}

// Publish records a new original.
func (r *PublicationRepository) Publish(ctx context.Context, req ledger.PostRequest) (ledger.Pending, error) {
	return r.insert(ctx, req.ProfileID, model.KindOriginal, "", req.ContentURI)
}

// PublishComment records a remix of an existing publication.
func (r *PublicationRepository) PublishComment(ctx context.Context, req ledger.CommentRequest) (ledger.Pending, error) {
	parent, err := r.lookup(ctx, req.ProfileIDPointed, req.PubIDPointed)
	if err != nil {
		return ledger.Pending{}, err
	}
	return r.insert(ctx, req.ProfileID, model.KindRemix, parent.PublicationID(), req.ContentURI)
}

// Collect records a collect of an existing publication.
func (r *PublicationRepository) Collect(ctx context.Context, req ledger.CollectRequest) (ledger.Pending, error) {
	pub, err := r.lookup(ctx, req.ProfileID, req.PubID)
	if err != nil {
		return ledger.Pending{}, err
	}
	row := model.Collect{CollectorID: req.CollectorID, PublicationID: pub.PublicationID()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ledger.Pending{}, fmt.Errorf("record collect: %w", err)
	}
	logger.Info("[LocalLedger] 收藏成功",
		logger.String("collector", req.CollectorID),
		logger.String("publication", row.PublicationID))
	return ledger.Pending{Ref: fmt.Sprintf("local-collect-%d", row.ID)}, nil
}

// CollectCount returns how many times a publication has been collected.
func (r *PublicationRepository) CollectCount(ctx context.Context, publicationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Collect{}).
		Where("publication_id = ?", publicationID).
		Count(&count).Error
	return count, err
}

func (r *PublicationRepository) insert(ctx context.Context, owner string, kind model.Kind, parentID, contentURI string) (ledger.Pending, error) {
	if owner == "" {
		return ledger.Pending{}, errors.New("profile id is required")
	}
	doc, err := r.document(ctx, contentURI)
	if err != nil {
		return ledger.Pending{}, err
	}

	row := model.Publication{
		OwnerID:     owner,
		Kind:        kind,
		ParentID:    parentID,
		ContentURI:  contentURI,
		Title:       doc.Name,
		Description: doc.DescriptionText(),
		Media:       doc.MediaItems(),
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last model.Publication
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ?", owner).
			Order("sequence_id DESC").
			Limit(1).
			Find(&last)
		if res.Error != nil {
			return res.Error
		}
		row.SequenceID = last.SequenceID + 1
		return tx.Create(&row).Error
	})
	if err != nil {
		return ledger.Pending{}, fmt.Errorf("record publication: %w", err)
	}

	logger.Info("[LocalLedger] 发布成功",
		logger.String("id", row.PublicationID()),
		logger.String("kind", string(kind)),
		logger.String("parent", parentID))
	return ledger.Pending{Ref: fmt.Sprintf("local-%d", row.ID)}, nil
}

// document reads and parses the metadata document behind contentURI.
func (r *PublicationRepository) document(ctx context.Context, contentURI string) (*metadata.Document, error) {
	cid, err := r.resolver.ContentIDOf(contentURI)
	if err != nil {
		return nil, err
	}
	blob, err := r.blobs.Fetch(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", cid, err)
	}
	doc, err := metadata.Parse(blob.Data)
	if err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", cid, err)
	}
	return doc, nil
}

func (r *PublicationRepository) lookup(ctx context.Context, owner, sequence string) (*model.Publication, error) {
	seq, ok := new(big.Int).SetString(sequence, 0)
	if !ok || !seq.IsUint64() {
		return nil, fmt.Errorf("%w: %s", ErrPublicationNotFound, model.FormatID(owner, sequence))
	}
	var pub model.Publication
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND sequence_id = ?", owner, seq.Uint64()).
		First(&pub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPublicationNotFound, model.FormatID(owner, sequence))
	}
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

// Publications returns the owner's most recent publications.
func (r *PublicationRepository) Publications(ctx context.Context, ownerID string) ([]model.PublicationRecord, error) {
	var rows []model.Publication
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("sequence_id DESC").
		Limit(index.PageLimit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]model.PublicationRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		records = append(records, rows[i].Record())
	}
	return records, nil
}

// Profiles returns the single local profile of address.
func (r *PublicationRepository) Profiles(_ context.Context, address string) ([]model.Profile, error) {
	return []model.Profile{{ID: address, Handle: address}}, nil
}

// Following returns the profiles address follows.
func (r *PublicationRepository) Following(ctx context.Context, address string) ([]model.Profile, error) {
	var rows []model.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ?", address).
		Order("id ASC").
		Limit(index.PageLimit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	profiles := make([]model.Profile, 0, len(rows))
	for _, f := range rows {
		profiles = append(profiles, model.Profile{ID: f.FolloweeID, Handle: f.FolloweeID})
	}
	return profiles, nil
}

// Follow records that follower follows followee. Repeating it is a no-op.
func (r *PublicationRepository) Follow(ctx context.Context, follower, followee string) error {
	if follower == "" || followee == "" || follower == followee {
		return fmt.Errorf("invalid follow %q -> %q", follower, followee)
	}
	row := model.Follow{FollowerID: follower, FolloweeID: followee}
	return r.db.WithContext(ctx).
		Where(model.Follow{FollowerID: follower, FolloweeID: followee}).
		FirstOrCreate(&row).Error
}
