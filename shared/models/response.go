package models

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DraftResponse оборачивает запись черновика в wire-формат { "draft": ... }.
type DraftResponse struct {
	Draft *DraftRecord `json:"draft"`
}

// SuccessResponse - тело ответа для операций без результата (например, удаление).
type SuccessResponse struct {
	Success bool `json:"success"`
}
