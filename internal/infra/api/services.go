// internal/infra/api/services.go
package api

// Services groups the endpoint wrappers sharing one authenticated Client.
type Services struct {
	Client     *Client
	Auth       *AuthService
	Classrooms *ClassroomService
	Students   *StudentService
	Lessons    *LessonService
	Chats      *ChatService
}

func NewServices(c *Client) *Services {
	return &Services{
		Client:     c,
		Auth:       &AuthService{client: c},
		Classrooms: &ClassroomService{client: c},
		Students:   &StudentService{client: c},
		Lessons:    &LessonService{client: c},
		Chats:      &ChatService{client: c},
	}
}
