package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *text, const char *lang)
{
	if (!text || !lang)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }
	espeak_VOICE specs = { .languages = lang };
	espeak_SetVoiceByProperties(&specs);

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_UTF8, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

const DefaultVoice = "ko"

// espeak keeps global state; one utterance at a time.
var mu sync.Mutex

// Speak reads text aloud with the given espeak-ng voice and blocks until
// playback is done.
func Speak(voice, text string) error {
	if text == "" {
		return nil
	}
	if voice == "" {
		voice = DefaultVoice
	}

	mu.Lock()
	defer mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(voice)
	defer C.free(unsafe.Pointer(clang))

	rc := C.espeak_say(ctext, clang)
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}

	return nil
}
