package models

// All returns every persisted model in migration order
func All() []any {
	return []any{
		&Config{},
		&Project{},
		&Type{},
		&Task{},
		&TaskDependency{},
		&Version{},
		&VersionInput{},
		&TaskHistory{},
		&Ticket{},
	}
}
