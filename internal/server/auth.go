package server

import (
	"crypto/subtle"
	"fmt"

	"github.com/zeusync/homestead/internal/core/placement"
	"github.com/zeusync/homestead/internal/core/replication"
)

// authorize decides the role of a new session. Players need nothing;
// editors must present the configured token.
func (s *Server) authorize(hello replication.Hello) (placement.Role, error) {
	switch placement.Role(hello.Role) {
	case "", placement.RolePlayer:
		return placement.RolePlayer, nil
	case placement.RoleEditor:
		token := s.config.EditorToken
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(hello.Token)) != 1 {
			return "", fmt.Errorf("%w: editor token rejected", ErrUnauthorized)
		}
		return placement.RoleEditor, nil
	default:
		return "", fmt.Errorf("%w: role %q", ErrUnauthorized, hello.Role)
	}
}
