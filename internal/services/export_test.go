package services

// SetMoveFile replaces the function used to move files between folders.
func (s *AgentsService) SetMoveFile(fn func(src, dst string) error) { s.moveFile = fn }
