package postgres

// SQL queries for reading the hashtag-usage event log.

const (
	// queryListHashtagEvents fetches one row per (post, hashtag) usage with
	// occurred_at in (since, until]. Ordered by created_at then post id so
	// replaying a range is deterministic.
	queryListHashtagEvents = `
		SELECT p.id, h.name, p.created_at
		FROM posts p
		JOIN post_hashtags ph ON ph.post_id = p.id
		JOIN hashtags h ON h.id = ph.hashtag_id
		WHERE p.created_at > $1
		  AND p.created_at <= $2
		ORDER BY p.created_at ASC, p.id ASC, h.name ASC
	`

	// queryListPostsContaining fetches, for every post containing the target
	// hashtag, the post's full hashtag set (including the target itself).
	// The structural self-join on post_hashtags is what makes co-occurrence
	// a single round trip. $2 bounds the analysis horizon; NULL means all time.
	queryListPostsContaining = `
		SELECT ph2.post_id, h2.name
		FROM post_hashtags ph1
		JOIN hashtags h1 ON h1.id = ph1.hashtag_id
		JOIN posts p ON p.id = ph1.post_id
		JOIN post_hashtags ph2 ON ph2.post_id = ph1.post_id
		JOIN hashtags h2 ON h2.id = ph2.hashtag_id
		WHERE h1.name = $1
		  AND ($2::timestamptz IS NULL OR p.created_at >= $2)
		ORDER BY ph2.post_id ASC, h2.name ASC
	`
)
