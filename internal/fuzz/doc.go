// Package fuzztests houses Go fuzz harnesses for the compiler front doors:
// Yul text and JSON decoding, legacy assembly decoding, the target
// assembler and artifact metadata parsing. They guard against panics and
// hangs on arbitrary input.
//
// Не делает: генерацию корпусов, запись файлов, выполнение CLI.
package fuzztests
