package backendtest

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/vlanet/videoplanet/internal/feedback"
	"github.com/vlanet/videoplanet/internal/services"
	"github.com/vlanet/videoplanet/internal/session"
)

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	User         *userBody `json:"user,omitempty"`
}

type userBody struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (b *Backend) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid credentials payload"})
		return
	}

	b.mu.Lock()
	userID := "user-" + request.Email
	access, refresh := b.issueTokensLocked(userID)
	b.mu.Unlock()

	c.JSON(http.StatusOK, tokenPayload{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         &userBody{ID: userID, Email: request.Email, DisplayName: request.Email},
	})
}

type refreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (b *Backend) handleRefresh(c *gin.Context) {
	var request refreshPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "refresh token required"})
		return
	}

	b.mu.Lock()
	rejected := b.refreshFails
	var access, refresh string
	if !rejected {
		access, refresh = b.issueTokensLocked("user-refreshed")
	}
	b.mu.Unlock()

	if rejected {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "refresh token rejected", "code": "token_invalid"})
		return
	}
	c.JSON(http.StatusOK, tokenPayload{AccessToken: access, RefreshToken: refresh})
}

func (b *Backend) handleListProjects(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, b.projects)
}

func (b *Backend) handleCreateProject(c *gin.Context) {
	var request services.CreateProjectRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "project name required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if key := c.GetHeader("X-Idempotency-Key"); key != "" {
		if existingID, ok := b.idempotency[key]; ok {
			for _, project := range b.projects {
				if project.ID == existingID {
					c.JSON(http.StatusOK, project)
					return
				}
			}
		}
	}

	now := b.clock().UTC()
	created := services.Project{
		ID:          b.newIDLocked("project"),
		Name:        request.Name,
		Description: request.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.projects = append(b.projects, created)
	if key := c.GetHeader("X-Idempotency-Key"); key != "" {
		b.idempotency[key] = created.ID
	}
	c.JSON(http.StatusCreated, created)
}

func (b *Backend) handleListPlans(c *gin.Context) {
	projectID := c.Query("project_id")
	b.mu.Lock()
	defer b.mu.Unlock()
	plans := make([]services.VideoPlan, 0)
	for _, plan := range b.plans {
		if projectID == "" || plan.ProjectID == projectID {
			plans = append(plans, plan)
		}
	}
	c.JSON(http.StatusOK, plans)
}

func (b *Backend) handleCreatePlan(c *gin.Context) {
	var request services.CreateVideoPlanRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "plan title required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock().UTC()
	created := services.VideoPlan{
		ID:        b.newIDLocked("plan"),
		ProjectID: request.ProjectID,
		Title:     request.Title,
		Outline:   request.Outline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.plans = append(b.plans, created)
	c.JSON(http.StatusCreated, created)
}

func (b *Backend) handleListInvitations(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	invitations := make([]services.Invitation, 0, len(b.invitations))
	for _, invitation := range b.invitations {
		invitations = append(invitations, *invitation)
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].ID < invitations[j].ID })
	c.JSON(http.StatusOK, invitations)
}

func (b *Backend) handleSendInvitation(c *gin.Context) {
	var request services.SendInvitationRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.RecipientEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "recipient email required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock().UTC()
	invitation := services.Invitation{
		ID:             b.newIDLocked("invitation"),
		SenderID:       c.GetString("user_id"),
		SenderName:     c.GetString("user_id"),
		RecipientEmail: request.RecipientEmail,
		ProjectID:      request.ProjectID,
		Status:         services.InvitationPending,
		Message:        request.Message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.invitations[invitation.ID] = &invitation
	c.JSON(http.StatusCreated, invitation)
}

func (b *Backend) handleInvitationAction(c *gin.Context) {
	invitationID := c.Param("id")
	action := c.Param("action")

	b.mu.Lock()
	defer b.mu.Unlock()
	invitation, ok := b.invitations[invitationID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "invitation not found"})
		return
	}
	if invitation.Status != services.InvitationPending {
		c.JSON(http.StatusConflict, gin.H{"message": "invitation is not pending", "code": "invalid_transition"})
		return
	}
	switch action {
	case "accept":
		invitation.Status = services.InvitationAccepted
	case "decline":
		invitation.Status = services.InvitationDeclined
	case "cancel":
		invitation.Status = services.InvitationCancelled
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "unknown action"})
		return
	}
	invitation.UpdatedAt = b.clock().UTC()
	c.JSON(http.StatusOK, *invitation)
}

func (b *Backend) handleListEvents(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	calendarEvents := make([]services.CalendarEvent, 0, len(b.events))
	for _, calendarEvent := range b.events {
		calendarEvents = append(calendarEvents, *calendarEvent)
	}
	sort.Slice(calendarEvents, func(i, j int) bool { return calendarEvents[i].ID < calendarEvents[j].ID })
	c.JSON(http.StatusOK, calendarEvents)
}

func (b *Backend) handleCreateEvent(c *gin.Context) {
	var request services.EventRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "event title required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock().UTC()
	created := services.CalendarEvent{
		ID:        b.newIDLocked("event"),
		ProjectID: request.ProjectID,
		Title:     request.Title,
		StartAt:   request.StartAt,
		EndAt:     request.EndAt,
		AllDay:    request.AllDay,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.events[created.ID] = &created
	c.JSON(http.StatusCreated, created)
}

func (b *Backend) handleUpdateEvent(c *gin.Context) {
	var request services.EventRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid event payload"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	calendarEvent, ok := b.events[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "event not found"})
		return
	}
	calendarEvent.Title = request.Title
	calendarEvent.StartAt = request.StartAt
	calendarEvent.EndAt = request.EndAt
	calendarEvent.AllDay = request.AllDay
	calendarEvent.UpdatedAt = b.clock().UTC()
	c.JSON(http.StatusOK, *calendarEvent)
}

func (b *Backend) handleDeleteEvent(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.events[c.Param("id")]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "event not found"})
		return
	}
	delete(b.events, c.Param("id"))
	c.Status(http.StatusNoContent)
}

type bulkEventsPayload struct {
	Events []struct {
		ID string `json:"id"`
		services.EventRequest
	} `json:"events"`
}

func (b *Backend) handleBulkUpdateEvents(c *gin.Context) {
	var request bulkEventsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid bulk payload"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	updated := make([]services.CalendarEvent, 0, len(request.Events))
	for _, entry := range request.Events {
		calendarEvent, ok := b.events[entry.ID]
		if !ok {
			continue
		}
		calendarEvent.Title = entry.Title
		calendarEvent.StartAt = entry.StartAt
		calendarEvent.EndAt = entry.EndAt
		calendarEvent.UpdatedAt = b.clock().UTC()
		updated = append(updated, *calendarEvent)
	}
	c.JSON(http.StatusOK, updated)
}

func (b *Backend) handleListFeedbacks(c *gin.Context) {
	videoID := c.Query("video_id")
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make([]feedback.TimelineFeedback, 0)
	for _, entry := range b.feedbacks {
		if videoID == "" || entry.VideoID == videoID {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	c.JSON(http.StatusOK, entries)
}

func (b *Backend) handleCreateFeedback(c *gin.Context) {
	var draft feedback.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid feedback payload"})
		return
	}
	if err := draft.Validate(0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "code": "validation_failed"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock().UTC()
	userID := c.GetString("user_id")
	created := feedback.TimelineFeedback{
		ID:        b.newIDLocked("feedback"),
		VideoID:   draft.VideoID,
		Author:    feedback.Author{ID: userID, DisplayName: userID},
		Timestamp: draft.Timestamp,
		Category:  draft.Category,
		Priority:  draft.Priority,
		Status:    feedback.StatusActive,
		Title:     draft.Title,
		Content:   draft.Content,
		Mentions:  draft.Mentions,
		Tags:      draft.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.feedbacks[created.ID] = &created
	c.JSON(http.StatusCreated, created)
}

func (b *Backend) handleUpdateFeedback(c *gin.Context) {
	var request services.UpdateFeedbackRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid feedback payload"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.feedbacks[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "feedback not found"})
		return
	}
	if request.Title != "" {
		entry.Title = request.Title
	}
	if request.Content != "" {
		entry.Content = request.Content
	}
	if request.Category != "" {
		entry.Category = request.Category
	}
	if request.Priority != "" {
		entry.Priority = request.Priority
	}
	if request.Status != "" {
		entry.Status = request.Status
	}
	if request.Position != nil {
		entry.Position = request.Position
	}
	if request.Tags != nil {
		entry.Tags = request.Tags
	}
	entry.UpdatedAt = b.clock().UTC()
	c.JSON(http.StatusOK, *entry)
}

func (b *Backend) handleDeleteFeedback(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.feedbacks[c.Param("id")]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "feedback not found"})
		return
	}
	delete(b.feedbacks, c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (b *Backend) handleResolveFeedback(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.feedbacks[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "feedback not found"})
		return
	}
	now := b.clock().UTC()
	entry.Status = feedback.StatusResolved
	entry.ResolvedAt = &now
	entry.ResolvedBy = c.GetString("user_id")
	entry.UpdatedAt = now
	c.JSON(http.StatusOK, *entry)
}

type replyPayload struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
}

func (b *Backend) handleReplyFeedback(c *gin.Context) {
	var request replyPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "reply content required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.feedbacks[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "feedback not found"})
		return
	}
	now := b.clock().UTC()
	userID := c.GetString("user_id")
	reply := feedback.Reply{
		ID:         b.newIDLocked("reply"),
		FeedbackID: entry.ID,
		Author:     feedback.Author{ID: userID, DisplayName: userID},
		Content:    request.Content,
		Mentions:   request.Mentions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry.Replies = append(entry.Replies, reply)
	c.JSON(http.StatusCreated, reply)
}

func (b *Backend) handleGetSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	videoSession, ok := b.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}
	c.JSON(http.StatusOK, *videoSession)
}

func (b *Backend) handleSessionAction(c *gin.Context) {
	switch c.Param("action") {
	case "join":
		b.handleJoinSession(c)
	case "leave":
		b.handleLeaveSession(c)
	case "sync":
		b.handleSyncPlayback(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "unknown action"})
	}
}

func (b *Backend) handleJoinSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	videoSession, ok := b.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}
	userID := c.GetString("user_id")
	joined := false
	for _, participant := range videoSession.Participants {
		if participant.ID == userID {
			joined = true
			break
		}
	}
	if !joined {
		videoSession.Participants = append(videoSession.Participants, session.Participant{
			ID:          userID,
			DisplayName: userID,
		})
	}
	c.JSON(http.StatusOK, *videoSession)
}

func (b *Backend) handleLeaveSession(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	videoSession, ok := b.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}
	userID := c.GetString("user_id")
	remaining := videoSession.Participants[:0]
	for _, participant := range videoSession.Participants {
		if participant.ID != userID {
			remaining = append(remaining, participant)
		}
	}
	videoSession.Participants = remaining
	c.Status(http.StatusNoContent)
}

// handleSyncPlayback applies last-writer-wins on LastUpdated and returns
// the authoritative state.
func (b *Backend) handleSyncPlayback(c *gin.Context) {
	var pushed session.PlaybackState
	if err := c.ShouldBindJSON(&pushed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid playback payload"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	videoSession, ok := b.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}
	b.syncRequests[videoSession.ID]++
	if pushed.LastUpdated.After(videoSession.Playback.LastUpdated) {
		videoSession.Playback = pushed
	}
	c.JSON(http.StatusOK, videoSession.Playback)
}

func (b *Backend) handleListComments(c *gin.Context) {
	sessionID := c.Query("session_id")
	b.mu.Lock()
	defer b.mu.Unlock()
	comments := make([]session.RealtimeComment, 0)
	for _, comment := range b.comments {
		if sessionID == "" || comment.SessionID == sessionID {
			comments = append(comments, comment)
		}
	}
	c.JSON(http.StatusOK, comments)
}

func (b *Backend) handlePostComment(c *gin.Context) {
	var request services.PostCommentRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.SessionID == "" || request.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "session id and content required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID := c.GetString("user_id")
	comment := session.RealtimeComment{
		ID:        b.newIDLocked("comment"),
		SessionID: request.SessionID,
		Author:    session.Participant{ID: userID, DisplayName: userID},
		Content:   request.Content,
		Timestamp: request.Timestamp,
		Mentions:  request.Mentions,
		Type:      request.Type,
		CreatedAt: b.clock().UTC(),
	}
	b.comments = append(b.comments, comment)
	c.JSON(http.StatusCreated, comment)
}
