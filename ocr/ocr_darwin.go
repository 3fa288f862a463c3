// Package ocr extracts text from captured slide images using the system
// Vision framework.
package ocr

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=10.15
#cgo LDFLAGS: -framework Vision -framework Foundation -framework CoreImage

#include <stdlib.h>
#include <string.h>
#import <Foundation/Foundation.h>
#import <Vision/Vision.h>
#import <CoreImage/CoreImage.h>

static char* recognizeImageText(const char* imagePath) {
    NSString *path = [NSString stringWithUTF8String:imagePath];
    NSURL *url = [NSURL fileURLWithPath:path];
    CIImage *image = [CIImage imageWithContentsOfURL:url];
    if (image == nil) {
        return NULL;
    }

    __block NSMutableArray<NSString *> *lines = [NSMutableArray array];
    VNRecognizeTextRequest *request = [[VNRecognizeTextRequest alloc]
        initWithCompletionHandler:^(VNRequest *req, NSError *error) {
            if (error != nil) {
                return;
            }
            for (VNRecognizedTextObservation *obs in req.results) {
                VNRecognizedText *best = [[obs topCandidates:1] firstObject];
                if (best != nil) {
                    [lines addObject:best.string];
                }
            }
        }];
    request.recognitionLevel = VNRequestTextRecognitionLevelAccurate;
    request.usesLanguageCorrection = YES;

    VNImageRequestHandler *handler =
        [[VNImageRequestHandler alloc] initWithCIImage:image options:@{}];
    NSError *error = nil;
    if (![handler performRequests:@[request] error:&error]) {
        return NULL;
    }

    NSString *joined = [lines componentsJoinedByString:@"\n"];
    return strdup([joined UTF8String]);
}
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// RecognizeText runs text recognition on the image at the given path.
func RecognizeText(imagePath string) (string, error) {
	cPath := C.CString(imagePath)
	defer C.free(unsafe.Pointer(cPath))

	cResult := C.recognizeImageText(cPath)
	if cResult == nil {
		return "", fmt.Errorf("recognize text in %s: failed to load or process image", imagePath)
	}
	defer C.free(unsafe.Pointer(cResult))

	return C.GoString(cResult), nil
}
