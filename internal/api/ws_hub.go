package api

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub управляет WebSocket соединениями операторских терминалов
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
}

// StatusHub - глобальный хаб статусной ленты сборки (сообщения
// сканеру-оператору: привязки, ошибки, печать, итоги синхронизации)
var StatusHub = &Hub{
	clients:   make(map[*websocket.Conn]bool),
	broadcast: make(chan []byte, 256), // Буферизованный канал для производительности
}

// StatusMessage — одно сообщение статусной ленты
type StatusMessage struct {
	Level string    `json:"level"` // 'info' | 'success' | 'warning' | 'error'
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Run запускает хаб для обработки сообщений
func (h *Hub) Run() {
	for {
		msg := <-h.broadcast
		h.mutex.RLock()
		for client := range h.clients {
			err := client.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				// Удаляем клиента при ошибке записи
				h.mutex.RUnlock()
				h.RemoveClient(client)
				h.mutex.RLock()
			}
		}
		h.mutex.RUnlock()
	}
}

// AddClient добавляет нового клиента (терминал оператора)
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

// RemoveClient удаляет клиента
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

// BroadcastMessage отправляет сообщение всем подключенным клиентам
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		// Если канал переполнен, пропускаем сообщение (не блокируем)
	}
}

// BroadcastStatus отправляет статусное сообщение всем терминалам.
// Сигнатура совпадает с notify-коллбеком конвейера сборки
func (h *Hub) BroadcastStatus(level, text string) {
	data, err := json.Marshal(StatusMessage{Level: level, Text: text, At: time.Now().UTC()})
	if err != nil {
		log.Printf("⚠️ WebSocket: ошибка сериализации статуса: %v", err)
		return
	}
	h.BroadcastMessage(data)
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
