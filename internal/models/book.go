package models

import "time"

// Book represents a catalog entry and the number of copies on the shelf
type Book struct {
	ID        int64     `json:"id" db:"id" example:"1"`
	Title     string    `json:"title" db:"title" example:"Dune"`
	Author    string    `json:"author" db:"author" example:"Frank Herbert"`
	Category  string    `json:"category" db:"category" example:"Science Fiction"`
	Quantity  int       `json:"quantity" db:"quantity" example:"3"` // copies available to borrow
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// BookRequest is the admin payload for creating or editing a book
type BookRequest struct {
	Title    string `json:"title" validate:"required,max=255"`
	Author   string `json:"author" validate:"required,max=255"`
	Category string `json:"category" validate:"max=100"`
	Quantity *int   `json:"quantity" validate:"required,gte=0"`
}
