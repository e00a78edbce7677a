package admin

import (
	"fmt"
	"time"

	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

// OnlineCounter reports how many users are online, for presence updates.
type OnlineCounter interface {
	OnlineCount() int
}

// Emitter turns domain events into the fixed admin-room payloads, each
// paired with a generic notification where one applies.
// ARCHITECTURAL DISCOVERY: urgency is decided here and is not caller
// configurable, so every producer of an event gets the same policy
type Emitter struct {
	publisher interfaces.Publisher
	online    OnlineCounter
	now       func() time.Time
}

// NewEmitter creates an emitter publishing through publisher.
func NewEmitter(publisher interfaces.Publisher, online OnlineCounter) *Emitter {
	return &Emitter{
		publisher: publisher,
		online:    online,
		now:       time.Now,
	}
}

var adminRoom = types.RoleRoom(types.RoleAdmin)

func (e *Emitter) timestamp() string {
	return types.Timestamp(e.now())
}

// stamp fills an empty event time with the server clock.
func (e *Emitter) stamp(value *string) {
	if *value == "" {
		*value = e.timestamp()
	}
}

func (e *Emitter) notify(kind, message string, urgent bool) {
	e.publisher.Publish(adminRoom, types.EventNotification, types.Notification{
		Type:      kind,
		Message:   message,
		Urgent:    urgent,
		Timestamp: e.timestamp(),
	})
}

// EmitNewSubmission announces a homework submission. Returns the number of
// admin sessions the typed event reached.
func (e *Emitter) EmitNewSubmission(event types.NewSubmission) int {
	e.stamp(&event.SubmittedAt)
	n := e.publisher.Publish(adminRoom, types.EventNewSubmission, event)
	e.notify(types.EventNewSubmission,
		fmt.Sprintf("%s submitted %q for %s", event.StudentName, event.HomeworkTitle, event.ClassName),
		false)
	return n
}

// EmitNewUser announces a registration. Teacher registrations are urgent
// because teacher accounts wait for manual approval.
func (e *Emitter) EmitNewUser(event types.NewUser) int {
	e.stamp(&event.RegisteredAt)
	n := e.publisher.Publish(adminRoom, types.EventNewUser, event)
	e.notify(types.EventNewUser,
		fmt.Sprintf("New %s registered: %s", event.Role, event.Name),
		event.Role == types.RoleTeacher)
	return n
}

// EmitAttendanceUpdate announces recorded attendance
func (e *Emitter) EmitAttendanceUpdate(event types.AttendanceUpdate) int {
	e.stamp(&event.RecordedAt)
	n := e.publisher.Publish(adminRoom, types.EventAttendanceUpdate, event)
	e.notify(types.EventAttendanceUpdate,
		fmt.Sprintf("Attendance for %s: %d/%d present", event.ClassName, event.PresentCount, event.TotalCount),
		false)
	return n
}

// EmitHomeworkCreated announces a new assignment
func (e *Emitter) EmitHomeworkCreated(event types.HomeworkCreated) int {
	e.stamp(&event.CreatedAt)
	n := e.publisher.Publish(adminRoom, types.EventHomeworkCreated, event)
	e.notify(types.EventHomeworkCreated,
		fmt.Sprintf("%s assigned %q to %s", event.TeacherName, event.Title, event.ClassName),
		false)
	return n
}

// EmitSystemHealth publishes a health report. Only a non-healthy status
// raises an (urgent) notification.
func (e *Emitter) EmitSystemHealth(event types.SystemHealth) int {
	e.stamp(&event.Timestamp)
	n := e.publisher.Publish(adminRoom, types.EventSystemHealth, event)
	if event.Status != types.HealthHealthy {
		e.notify(types.EventSystemHealth,
			fmt.Sprintf("System status is %s", event.Status),
			true)
	}
	return n
}

// EmitPresenceChange tells admins a user came online or went offline.
func (e *Emitter) EmitPresenceChange(userID types.ID, role, status string) int {
	return e.publisher.Publish(adminRoom, types.EventPresenceUpdate, types.PresenceUpdate{
		UserID:      userID,
		Role:        role,
		Status:      status,
		OnlineCount: e.online.OnlineCount(),
		Timestamp:   e.timestamp(),
	})
}

// NotifyUser publishes an arbitrary event to a user's room.
func (e *Emitter) NotifyUser(userID types.ID, event string, payload interface{}) int {
	return e.publisher.Publish(types.UserRoom(userID), event, payload)
}

// NotifyRole publishes an arbitrary event to a role's room.
func (e *Emitter) NotifyRole(role, event string, payload interface{}) int {
	return e.publisher.Publish(types.RoleRoom(role), event, payload)
}

// GetConnectedAdminCount returns the number of sessions in the admin room
func (e *Emitter) GetConnectedAdminCount() int {
	return e.publisher.RoomSize(adminRoom)
}
