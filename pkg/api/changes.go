package api

// Change представляет одно изменение сущности в пакете отправки.
// Payload содержит актуальное состояние сущности на момент отправки
// и отсутствует у удалений.
type Change struct {
	Payload    map[string]any `json:"payload,omitempty"`
	Action     string         `json:"action"`      // "save" или "delete"
	Type       string         `json:"type"`        // тег типа сущности
	Key        string         `json:"key"`         // временный или постоянный ключ
	ItemKey    string         `json:"item_key"`    // проверяемая работа
	LastChange int64          `json:"last_change"` // момент изменения по серверному времени, мс
}

// SendRequest представляет пакет изменений от клиента
type SendRequest struct {
	Changes []Change `json:"changes"`
}

// SendResponse представляет ответ сервера на пакет изменений.
// KeyMap сопоставляет отправленные ключи постоянным; null означает,
// что сущность на сервере отсутствует и должна быть удалена локально.
type SendResponse struct {
	KeyMap     map[string]*string `json:"key_map"`
	Token      string             `json:"token"`       // обновленный токен
	ServerTime int64              `json:"server_time"` // серверное время, мс
	Accepted   bool               `json:"accepted"`
}

// DataResponse представляет полный набор данных корректора
type DataResponse struct {
	Task       map[string]any              `json:"task"`
	Entities   map[string][]map[string]any `json:"entities"` // тег типа -> записи
	Token      string                      `json:"token"`
	ServerTime int64                       `json:"server_time"`
}
