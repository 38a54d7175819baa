package domain

// resultKind различает три исхода операции.
type resultKind uint8

const (
	resultEmpty resultKind = iota
	resultOK
	resultFailed
)

// Result — ответ публичной операции сервиса: данные, ошибка либо пусто.
// Пустой результат не является ошибкой (нет корзины, нет перехода, не найдено).
type Result[T any] struct {
	kind resultKind
	data T
	err  error
}

// Ok оборачивает данные.
func Ok[T any](data T) Result[T] {
	return Result[T]{kind: resultOK, data: data}
}

// Empty возвращает пустой результат.
func Empty[T any]() Result[T] {
	return Result[T]{kind: resultEmpty}
}

// Fail возвращает результат с маркером ошибки.
func Fail[T any](err error) Result[T] {
	if err == nil {
		return Empty[T]()
	}
	return Result[T]{kind: resultFailed, err: err}
}

// Found сообщает, что результат содержит данные.
func (r Result[T]) Found() bool { return r.kind == resultOK }

// IsEmpty сообщает, что операция отработала, но данных нет.
func (r Result[T]) IsEmpty() bool { return r.kind == resultEmpty }

// Failed сообщает, что операция завершилась ошибкой.
func (r Result[T]) Failed() bool { return r.kind == resultFailed }

// Data возвращает данные и признак их наличия.
func (r Result[T]) Data() (T, bool) {
	return r.data, r.kind == resultOK
}

// Err возвращает ошибку для Failed-результата и nil для остальных.
func (r Result[T]) Err() error { return r.err }

// FromError переводит ошибку в результат: отсутствие сущности даёт пустой результат,
// остальные ошибки становятся маркером ошибки.
func FromError[T any](err error) Result[T] {
	if IsNotFound(err) {
		return Empty[T]()
	}
	return Fail[T](err)
}
