package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a registered reader. PasswordHash is never serialized.
type User struct {
	UID          string    `gorm:"column:uid;type:char(36);primaryKey" json:"uid"`
	Username     string    `gorm:"column:username;not null" json:"username"`
	Email        string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	FirstName    string    `gorm:"column:first_name;not null" json:"first_name"`
	LastName     string    `gorm:"column:last_name;not null" json:"last_name"`
	Role         string    `gorm:"column:role;not null;default:user" json:"role"`
	IsVerified   bool      `gorm:"column:is_verified;not null;default:false" json:"is_verified"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
	Books        []Book    `gorm:"foreignKey:UserUID;references:UID" json:"books"`
	Reviews      []Review  `gorm:"foreignKey:UserUID;references:UID" json:"reviews"`
}

func (User) TableName() string { return "users" }

// Book is a catalogued title owned by the user who added it.
type Book struct {
	UID           string    `gorm:"column:uid;type:char(36);primaryKey" json:"uid"`
	Title         string    `gorm:"column:title;not null" json:"title"`
	Author        string    `gorm:"column:author;not null" json:"author"`
	Publisher     string    `gorm:"column:publisher;not null" json:"publisher"`
	PublishedDate time.Time `gorm:"column:published_date" json:"published_date"`
	PageCount     int       `gorm:"column:page_count" json:"page_count"`
	Language      string    `gorm:"column:language" json:"language"`
	UserUID       *string   `gorm:"column:user_uid;index" json:"user_uid"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
	Reviews       []Review  `gorm:"foreignKey:BookUID;references:UID" json:"reviews,omitempty"`
	Tags          []Tag     `gorm:"many2many:book_tags;joinForeignKey:BookID;joinReferences:TagID" json:"tags,omitempty"`
}

func (Book) TableName() string { return "books" }

// Review is a rating from 0 to 4 with free text.
type Review struct {
	UID        string    `gorm:"column:uid;type:char(36);primaryKey" json:"uid"`
	Rating     int       `gorm:"column:rating;not null;check:rating < 5" json:"rating"`
	ReviewText string    `gorm:"column:review_text;not null" json:"review_text"`
	UserUID    *string   `gorm:"column:user_uid;index" json:"user_uid"`
	BookUID    *string   `gorm:"column:book_uid;index" json:"book_uid"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Review) TableName() string { return "reviews" }

// Tag labels books through the book_tags join table.
type Tag struct {
	UID       string    `gorm:"column:uid;type:char(36);primaryKey" json:"uid"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	Books     []Book    `gorm:"many2many:book_tags;joinForeignKey:TagID;joinReferences:BookID" json:"-"`
}

func (Tag) TableName() string { return "tags" }

func (user *User) BeforeCreate(tx *gorm.DB) error {
	if user.UID == "" {
		user.UID = uuid.NewString()
	}
	return nil
}

func (book *Book) BeforeCreate(tx *gorm.DB) error {
	if book.UID == "" {
		book.UID = uuid.NewString()
	}
	return nil
}

func (review *Review) BeforeCreate(tx *gorm.DB) error {
	if review.UID == "" {
		review.UID = uuid.NewString()
	}
	return nil
}

func (tag *Tag) BeforeCreate(tx *gorm.DB) error {
	if tag.UID == "" {
		tag.UID = uuid.NewString()
	}
	return nil
}
