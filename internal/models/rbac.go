package models

import (
	"sort"
	"time"
)

type Role struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an explicit resource/action pair. There is no wildcard or
// hierarchy semantics; authorization is an exact string match.
type Permission struct {
	ID          string
	Resource    string
	Action      string
	Description string
	DeletedAt   *time.Time
	CreatedAt   time.Time
}

// Key returns the canonical "resource:action" form used in permission sets.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// PermissionSet is a resolved effective permission set for one principal.
type PermissionSet map[string]struct{}

func NewPermissionSet(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p.Key()] = struct{}{}
	}
	return set
}

// Allows reports whether the set grants the exact resource/action pair.
func (ps PermissionSet) Allows(resource, action string) bool {
	_, ok := ps[resource+":"+action]
	return ok
}

// Keys returns the sorted permission keys, for stable responses and logs.
func (ps PermissionSet) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type UserRole struct {
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

type RolePermission struct {
	RoleID       string
	PermissionID string
}

// Permissions required by the administrative surface itself.
const (
	PermRoleManage     = "role:manage"
	PermSecurityRead   = "security:read"
	PermSecurityManage = "security:manage"
)
