package entity

import "time"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleWorker   Role = "WORKER"
)

// CanInitiateConversation reports whether this role may create a conversation
// with an arbitrary participant set. Customers get their counterpart set from
// the assignment policy instead.
func (r Role) CanInitiateConversation() bool {
	return r == RoleStaff || r == RoleWorker
}

// CanSendToAnyConversation is the cross-conversation exception: staff and
// maintenance workers may post to conversations they are not listed in.
func (r Role) CanSendToAnyConversation() bool {
	return r == RoleStaff || r == RoleWorker
}

type Participant struct {
	ID          string    `json:"id" firestore:"id"`
	DisplayName string    `json:"display_name" firestore:"displayName"`
	AvatarURL   string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	Role        Role      `json:"role" firestore:"role"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updatedAt"`
}
