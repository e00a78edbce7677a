package types

// Admin room payloads. Field names are a versioned wire contract; admin
// dashboards decode them directly.

// NewSubmission is published when a parent submits homework.
type NewSubmission struct {
	SubmissionID  ID     `json:"submissionId"`
	StudentName   string `json:"studentName"`
	HomeworkTitle string `json:"homeworkTitle"`
	ParentName    string `json:"parentName"`
	ClassName     string `json:"className"`
	SubmittedAt   string `json:"submittedAt"`
	FilesCount    int    `json:"filesCount"`
}

// NewUser is published when an account registers.
type NewUser struct {
	UserID       ID     `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	RegisteredAt string `json:"registeredAt"`
}

// AttendanceUpdate is published when a teacher records attendance.
type AttendanceUpdate struct {
	ClassName    string `json:"className"`
	PresentCount int    `json:"presentCount"`
	TotalCount   int    `json:"totalCount"`
	TeacherName  string `json:"teacherName"`
	RecordedAt   string `json:"recordedAt"`
}

// HomeworkCreated is published when a teacher assigns homework.
type HomeworkCreated struct {
	HomeworkID  ID     `json:"homeworkId"`
	Title       string `json:"title"`
	ClassName   string `json:"className"`
	TeacherName string `json:"teacherName"`
	DueDate     string `json:"dueDate"`
	CreatedAt   string `json:"createdAt"`
}

// MemoryUsage mirrors the process memory figures reported in system_health.
type MemoryUsage struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapSys    uint64 `json:"heapSys"`
	Sys        uint64 `json:"sys"`
	Goroutines int    `json:"goroutines"`
}

// SystemHealth is published periodically by the hub's maintenance loop.
type SystemHealth struct {
	Status            string      `json:"status"`
	Uptime            float64     `json:"uptime"`
	MemoryUsage       MemoryUsage `json:"memoryUsage"`
	ActiveConnections int         `json:"activeConnections"`
	Timestamp         string      `json:"timestamp"`
}

// Notification is the generic summary paired with typed admin events.
type Notification struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Urgent    bool   `json:"urgent"`
	Timestamp string `json:"timestamp"`
}

// PresenceUpdate reports a user coming online or going offline.
type PresenceUpdate struct {
	UserID      ID     `json:"userId"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status"`
	OnlineCount int    `json:"onlineCount"`
	Timestamp   string `json:"timestamp"`
}

// Presence statuses.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

func missing(event, field string) error {
	return &ValidationError{Event: event, Field: field, Err: ErrInvalidAdminEvent}
}

// Validate checks the fields admin dashboards cannot render without.
func (e NewSubmission) Validate() error {
	switch {
	case e.SubmissionID.IsZero():
		return missing(EventNewSubmission, "submissionId")
	case e.StudentName == "":
		return missing(EventNewSubmission, "studentName")
	case e.HomeworkTitle == "":
		return missing(EventNewSubmission, "homeworkTitle")
	case e.FilesCount < 0:
		return missing(EventNewSubmission, "filesCount")
	}
	return nil
}

// Validate checks the fields admin dashboards cannot render without.
func (e NewUser) Validate() error {
	switch {
	case e.UserID.IsZero():
		return missing(EventNewUser, "userId")
	case e.Name == "":
		return missing(EventNewUser, "name")
	case !IsValidRole(e.Role):
		return missing(EventNewUser, "role")
	}
	return nil
}

// Validate checks the counts are consistent.
func (e AttendanceUpdate) Validate() error {
	switch {
	case e.ClassName == "":
		return missing(EventAttendanceUpdate, "className")
	case e.TotalCount <= 0:
		return missing(EventAttendanceUpdate, "totalCount")
	case e.PresentCount < 0 || e.PresentCount > e.TotalCount:
		return missing(EventAttendanceUpdate, "presentCount")
	}
	return nil
}

// Validate checks the fields admin dashboards cannot render without.
func (e HomeworkCreated) Validate() error {
	switch {
	case e.HomeworkID.IsZero():
		return missing(EventHomeworkCreated, "homeworkId")
	case e.Title == "":
		return missing(EventHomeworkCreated, "title")
	case e.ClassName == "":
		return missing(EventHomeworkCreated, "className")
	}
	return nil
}
