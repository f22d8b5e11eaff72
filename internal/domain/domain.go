package domain

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// TaskStatuses lists every accepted status in display order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the accepted statuses.
func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Project struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
	UpdatedAt   string `json:"updatedAt" format:"date-time"`
}

type Task struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status" enum:"todo,in-progress,done"`
	ProjectID   string     `json:"projectId"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   string     `json:"createdAt" format:"date-time"`
	UpdatedAt   string     `json:"updatedAt" format:"date-time"`
}

// ProjectPatch carries the mutable project fields; nil means unchanged.
type ProjectPatch struct {
	Name        *string
	Description *string
}

// TaskPatch carries the mutable task fields; nil means unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	ProjectID   *string
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// User is an account of the local identity provider.
type User struct {
	Username           string   `json:"username"`
	UserID             string   `json:"user_id"`
	PasswordHash       string   `json:"-"`
	Groups             []string `json:"groups"`
	MustChangePassword bool     `json:"must_change_password"`
	CreatedAt          string   `json:"created_at"`
}
