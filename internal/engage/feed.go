package engage

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/kalemapp/kalem/internal/models"
)

// Activity feed kinds. "all" merges every source.
const (
	FeedAll           = "all"
	FeedComment       = "comment"
	FeedReaction      = "reaction"
	FeedUserJoined    = "user_joined"
	FeedPostPublished = "post_published"
)

// ActivityEvent is a read-only projection produced on demand for the
// admin feed; it is never stored.
type ActivityEvent struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
	ActorID    uint      `json:"actorId"`
	SubjectRef string    `json:"subjectRef"`
	Summary    string    `json:"summary"`
	Link       string    `json:"link"`
}

// FeedPage is one page of the merged feed. ApproximateTotal sums the
// windowed per-source counts; for the "all" filter the windowing makes
// it an approximation, not an exact page count.
type FeedPage struct {
	Events           []ActivityEvent `json:"events"`
	Page             int             `json:"page"`
	PageSize         int             `json:"pageSize"`
	ApproximateTotal int64           `json:"approximateTotal"`
}

// FeedService merges time-stamped events from four independent
// sources: new comments, new reactions on posts, new user
// registrations, and newly published posts.
type FeedService struct {
	db        *gorm.DB
	window    time.Duration
	sourceCap int
	now       func() time.Time
}

// NewFeedService builds a feed service. window bounds how far back
// each source is queried, sourceCap how many rows each source may
// contribute before the merge.
func NewFeedService(db *gorm.DB, window time.Duration, sourceCap int) *FeedService {
	return &FeedService{db: db, window: window, sourceCap: sourceCap, now: time.Now}
}

// GetFeed returns one page of the admin activity feed.
//
// For kind == "all" every source is queried with the full window and
// per-source cap, the four descending streams are merged by timestamp
// via a heap, and pagination is applied to the merged sequence.
// Paginating each source first and concatenating afterwards would make
// page boundaries source-local and globally wrong, so that shortcut is
// deliberately not taken. A single-kind filter skips the merge and
// paginates natively in SQL.
//
// In the merged feed a failing source degrades to an empty
// contribution and is logged; it never fails the whole feed. A
// single-kind filter has no other sources to fall back on, so there
// its failure is returned.
func (s *FeedService) GetFeed(ctx context.Context, kind string, page, pageSize int) (*FeedPage, error) {
	switch kind {
	case FeedAll, FeedComment, FeedReaction, FeedUserJoined, FeedPostPublished:
	default:
		return nil, validationf("unknown feed kind %q", kind)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	since := s.now().Add(-s.window)
	skip := (page - 1) * pageSize

	result := &FeedPage{Page: page, PageSize: pageSize, Events: []ActivityEvent{}}

	if kind != FeedAll {
		src := s.source(kind)
		events, err := src.fetch(ctx, since, pageSize, skip)
		if err != nil {
			return nil, fmt.Errorf("%s feed query failed: %w", kind, err)
		}
		total, err := src.count(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("%s feed count failed: %w", kind, err)
		}
		result.Events = append(result.Events, events...)
		result.ApproximateTotal = total
		return result, nil
	}

	streams := make([][]ActivityEvent, 0, 4)
	for _, k := range []string{FeedComment, FeedReaction, FeedUserJoined, FeedPostPublished} {
		events, err := s.source(k).fetch(ctx, since, s.sourceCap, 0)
		if err != nil {
			log.Printf("activity feed: %s source failed: %v", k, err)
			continue
		}
		if len(events) > 0 {
			streams = append(streams, events)
		}
		result.ApproximateTotal += s.windowedTotal(ctx, since, k)
	}

	result.Events = mergeStreams(streams, skip, pageSize)
	return result, nil
}

// windowedTotal counts one source inside the window, degrading to zero
// on error like the fetch path.
func (s *FeedService) windowedTotal(ctx context.Context, since time.Time, kind string) int64 {
	total, err := s.source(kind).count(ctx, since)
	if err != nil {
		log.Printf("activity feed: %s count failed: %v", kind, err)
		return 0
	}
	return total
}

// feedSource is one of the four independent event queries. Each
// returns events newest first, windowed to since.
type feedSource struct {
	fetch func(ctx context.Context, since time.Time, limit, offset int) ([]ActivityEvent, error)
	count func(ctx context.Context, since time.Time) (int64, error)
}

func (s *FeedService) source(kind string) feedSource {
	switch kind {
	case FeedComment:
		return feedSource{fetch: s.commentEvents, count: s.commentTotal}
	case FeedReaction:
		return feedSource{fetch: s.reactionEvents, count: s.reactionTotal}
	case FeedUserJoined:
		return feedSource{fetch: s.userEvents, count: s.userTotal}
	default:
		return feedSource{fetch: s.postEvents, count: s.postTotal}
	}
}

// === comment source ===

type commentEventRow struct {
	ID        uint
	AuthorID  uint
	CreatedAt time.Time
	Slug      string
	Title     string
}

func (s *FeedService) commentEvents(ctx context.Context, since time.Time, limit, offset int) ([]ActivityEvent, error) {
	var rows []commentEventRow
	err := s.db.WithContext(ctx).Table("comments").
		Select("comments.id, comments.author_id, comments.created_at, posts.slug, posts.title").
		Joins("JOIN posts ON posts.id = comments.post_id").
		Where("comments.created_at >= ?", since).
		Order("comments.created_at desc").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]ActivityEvent, len(rows))
	for i, r := range rows {
		events[i] = ActivityEvent{
			Kind:       FeedComment,
			OccurredAt: r.CreatedAt,
			ActorID:    r.AuthorID,
			SubjectRef: fmt.Sprintf("comment:%d", r.ID),
			Summary:    fmt.Sprintf("New comment on %q", r.Title),
			Link:       fmt.Sprintf("/posts/%s#comment-%d", r.Slug, r.ID),
		}
	}
	return events, nil
}

func (s *FeedService) commentTotal(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("created_at >= ?", since).Count(&total).Error
	return total, err
}

// === reaction source (reactions on posts) ===

type reactionEventRow struct {
	UserID    uint
	Type      string
	CreatedAt time.Time
	TargetID  uint
	Slug      string
	Title     string
}

func (s *FeedService) reactionEvents(ctx context.Context, since time.Time, limit, offset int) ([]ActivityEvent, error) {
	var rows []reactionEventRow
	err := s.db.WithContext(ctx).Table("reactions").
		Select("reactions.user_id, reactions.type, reactions.created_at, reactions.target_id, posts.slug, posts.title").
		Joins("JOIN posts ON posts.id = reactions.target_id").
		Where("reactions.target_kind = ? AND reactions.created_at >= ?", models.TargetPost, since).
		Order("reactions.created_at desc").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]ActivityEvent, len(rows))
	for i, r := range rows {
		verb := "liked"
		if r.Type == models.ReactionDislike {
			verb = "disliked"
		}
		events[i] = ActivityEvent{
			Kind:       FeedReaction,
			OccurredAt: r.CreatedAt,
			ActorID:    r.UserID,
			SubjectRef: fmt.Sprintf("post:%d", r.TargetID),
			Summary:    fmt.Sprintf("Post %q %s", r.Title, verb),
			Link:       fmt.Sprintf("/posts/%s", r.Slug),
		}
	}
	return events, nil
}

func (s *FeedService) reactionTotal(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Reaction{}).
		Where("target_kind = ? AND created_at >= ?", models.TargetPost, since).
		Count(&total).Error
	return total, err
}

// === user registration source ===

func (s *FeedService) userEvents(ctx context.Context, since time.Time, limit, offset int) ([]ActivityEvent, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at desc").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, err
	}

	events := make([]ActivityEvent, len(users))
	for i, u := range users {
		events[i] = ActivityEvent{
			Kind:       FeedUserJoined,
			OccurredAt: u.CreatedAt,
			ActorID:    u.ID,
			SubjectRef: fmt.Sprintf("user:%d", u.ID),
			Summary:    fmt.Sprintf("New member: %s", u.DisplayName),
			Link:       fmt.Sprintf("/admin/users/%d", u.ID),
		}
	}
	return events, nil
}

func (s *FeedService) userTotal(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("created_at >= ?", since).Count(&total).Error
	return total, err
}

// === published post source ===

func (s *FeedService) postEvents(ctx context.Context, since time.Time, limit, offset int) ([]ActivityEvent, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND published_at >= ?", models.StatusPublished, since).
		Order("published_at desc").
		Limit(limit).Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	events := make([]ActivityEvent, 0, len(posts))
	for _, p := range posts {
		if p.PublishedAt == nil {
			continue
		}
		events = append(events, ActivityEvent{
			Kind:       FeedPostPublished,
			OccurredAt: *p.PublishedAt,
			ActorID:    p.AuthorID,
			SubjectRef: fmt.Sprintf("post:%d", p.ID),
			Summary:    fmt.Sprintf("Post published: %s", p.Title),
			Link:       fmt.Sprintf("/posts/%s", p.Slug),
		})
	}
	return events, nil
}

func (s *FeedService) postTotal(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND published_at >= ?", models.StatusPublished, since).
		Count(&total).Error
	return total, err
}

// === k-way merge ===

// streamHeap orders streams by the timestamp of their head event,
// newest first. Every stream is non-empty and already sorted
// descending.
type streamHeap [][]ActivityEvent

func (h streamHeap) Len() int { return len(h) }
func (h streamHeap) Less(i, j int) bool {
	return h[i][0].OccurredAt.After(h[j][0].OccurredAt)
}
func (h streamHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *streamHeap) Push(x any)   { *h = append(*h, x.([]ActivityEvent)) }
func (h *streamHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeStreams merges descending streams into one globally descending
// sequence and applies skip/take to the merged output.
func mergeStreams(streams [][]ActivityEvent, skip, take int) []ActivityEvent {
	h := streamHeap{}
	for _, s := range streams {
		if len(s) > 0 {
			h = append(h, s)
		}
	}
	heap.Init(&h)

	out := make([]ActivityEvent, 0, take)
	seen := 0
	for h.Len() > 0 && len(out) < take {
		stream := heap.Pop(&h).([]ActivityEvent)
		if seen >= skip {
			out = append(out, stream[0])
		}
		seen++
		if rest := stream[1:]; len(rest) > 0 {
			heap.Push(&h, rest)
		}
	}
	return out
}
