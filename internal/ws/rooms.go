package ws

import (
	"sort"
	"strconv"
	"sync"
)

const AdminRoom = "admin"

func PersonalRoom(userID uint) string { return "user:" + strconv.FormatUint(uint64(userID), 10) }

func ChatRoom(roomID uint) string { return "chat:" + strconv.FormatUint(uint64(roomID), 10) }

// Router 维护逻辑房间与连接之间的双向索引：room → 连接集合，连接 → room 集合。
// 逻辑房间与持久化房间无关，加入时不做成员校验。
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	conns map[string]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join 幂等，返回是否为新加入。
func (r *Router) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	if _, ok := members[connID]; ok {
		return false
	}
	members[connID] = struct{}{}
	joined := r.conns[connID]
	if joined == nil {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave 幂等，返回连接此前是否在房间内。
func (r *Router) Leave(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(connID, room)
}

func (r *Router) removeLocked(connID, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
	return true
}

// MembersOf 返回房间当前的连接 ID，已排序。
func (r *Router) MembersOf(room string) []string {
	r.mu.RLock()
	members := r.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Router) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// RoomsOf 返回连接已加入的房间，已排序。
func (r *Router) RoomsOf(connID string) []string {
	r.mu.RLock()
	joined := r.conns[connID]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// DropConnection 把连接移出所有房间，返回受影响的房间。
func (r *Router) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined, ok := r.conns[connID]
	if !ok {
		return nil
	}
	affected := make([]string, 0, len(joined))
	for room := range joined {
		affected = append(affected, room)
	}
	for _, room := range affected {
		r.removeLocked(connID, room)
	}
	sort.Strings(affected)
	return affected
}
