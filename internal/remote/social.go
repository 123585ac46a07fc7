package remote

import (
	"context"
	"fmt"
	"net/url"
)

// Post is a forum post, with comment counts when listed through
// posts_with_counts.
type Post struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	AuthorEmail  string `json:"author_email,omitempty"`
	CommentCount int    `json:"comment_count,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Comment is one forum comment.
type Comment struct {
	ID          int64  `json:"id"`
	PostID      int64  `json:"post_id,omitempty"`
	Body        string `json:"body"`
	AuthorEmail string `json:"author_email,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// ListPosts returns forum posts with their comment counts.
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.getJSON(ctx, "/forum/posts_with_counts", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePost publishes a forum post.
func (c *Client) CreatePost(ctx context.Context, title, body string) error {
	payload := map[string]string{"title": title, "body": body}
	return c.postJSON(ctx, "/forum/posts", payload, nil)
}

// ListComments returns the comments of one post.
func (c *Client) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("/forum/posts/%d/comments", postID)
	if err := c.getJSON(ctx, path, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID int64, body string) error {
	path := fmt.Sprintf("/forum/posts/%d/comments", postID)
	return c.postJSON(ctx, path, map[string]string{"body": body}, nil)
}

// Friend is a directory entry.
type Friend struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// FriendRequest is a pending friend request.
type FriendRequest struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// ListFriends returns the accepted friends of the current account.
func (c *Client) ListFriends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := c.getJSON(ctx, "/friends", &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// IncomingRequests returns friend requests waiting on the current account.
func (c *Client) IncomingRequests(ctx context.Context) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if err := c.getJSON(ctx, "/friends/requests/incoming", &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// OutgoingRequests returns friend requests sent by the current account.
func (c *Client) OutgoingRequests(ctx context.Context) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if err := c.getJSON(ctx, "/friends/requests/outgoing", &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SendFriendRequest asks userID to connect.
func (c *Client) SendFriendRequest(ctx context.Context, userID int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/friends/request/%d", userID), nil, nil)
}

// AcceptFriendRequest accepts a pending request.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/friends/accept/%d", requestID), nil, nil)
}

// DeclineFriendRequest declines a pending request.
func (c *Client) DeclineFriendRequest(ctx context.Context, requestID int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/friends/decline/%d", requestID), nil, nil)
}

// Profile is the editable account profile.
type Profile struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MyProfile returns the current account's profile.
func (c *Client) MyProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/profiles/me", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile replaces the current account's profile.
func (c *Client) UpdateProfile(ctx context.Context, p Profile) error {
	return c.putJSON(ctx, "/profiles/me", p)
}

// SearchProfile looks a user up by email.
func (c *Client) SearchProfile(ctx context.Context, email string) (*Profile, error) {
	var p Profile
	path := "/profiles/search?email=" + url.QueryEscape(email)
	if err := c.getJSON(ctx, path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
