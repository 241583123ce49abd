// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);default:'customer'"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// Relationships
	Carts     []Cart     `json:"carts,omitempty" gorm:"foreignKey:UserID"`
	Purchases []Purchase `json:"purchases,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
